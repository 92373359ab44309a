/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	goflag "flag"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ss32",
	Short: "Assembler, linker and downloader for the SS32 computer",
	Long: `ss32 is the toolchain for the SS32, a small 32-bit machine with
sixteen general registers and a single 4-byte instruction format.

The asm command turns one assembly source into a relocatable object,
link combines objects into an executable or a larger relocatable
object, dump prints any object file, and load ships an executable
to a board over a serial line.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// glog complains unless the Go flag set reports parsed.
		goflag.CommandLine.Parse(nil)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))
	err := rootCmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)
	goflag.Set("logtostderr", "true")
}

// Long flags that may also be spelled with a single dash.
var legacyFlags = map[string]bool{
	"place":       true,
	"hex":         true,
	"relocatable": true,
}

// normalizeArgs rewrites -place=x, -hex and -relocatable to their
// double-dash forms.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.SplitN(arg[1:], "=", 2)[0]
		if legacyFlags[name] {
			out[i] = "-" + arg
		}
	}
	return out
}
