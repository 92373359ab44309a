/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"os"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gmofishsauce/ss32/pkg/obj"
)

var dumpRaw bool

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump [--raw] objectFile",
	Short: "Print an object file",
	Long: `Dump prints the headers, section contents, symbols and relocations
of a relocatable or executable object. With --raw it pretty-prints the
decoded file structure instead.`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := obj.ReadFile(args[0])
		if err != nil {
			return err
		}
		if !dumpRaw {
			return f.Dump(os.Stdout)
		}
		printer := pp.New()
		printer.SetColoringEnabled(term.IsTerminal(int(os.Stdout.Fd())))
		_, err = printer.Fprintln(os.Stdout, f)
		return err
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpRaw, "raw", false, "pretty-print the decoded structure")
}
