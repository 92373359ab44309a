/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/gmofishsauce/ss32/pkg/asm"
	"github.com/gmofishsauce/ss32/pkg/obj"
)

var (
	asmOutput  string
	asmListing bool
)

// asmCmd represents the asm command
var asmCmd = &cobra.Command{
	Use:   "asm [-o output] sourceFile",
	Short: "Assemble one source file into a relocatable object",
	Long: `Asm translates a single assembly source file into a relocatable
object. The output defaults to the source name with its extension
replaced by .o. With --listing, a readable dump of the object is also
written next to it with .txt appended.

Translation stops at the first error, which is reported with its
source line.`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		out := asmOutput
		if out == "" {
			out = strings.TrimSuffix(src, filepath.Ext(src)) + ".o"
		}
		fd, err := os.Open(src)
		if err != nil {
			return err
		}
		defer fd.Close()

		f, err := asm.AssembleSource(src, fd)
		if err != nil {
			return err
		}
		if err := f.WriteFile(out); err != nil {
			return err
		}
		glog.V(1).Infof("wrote %s", out)
		if asmListing {
			return writeListing(f, out+".txt")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(asmCmd)
	asmCmd.Flags().StringVarP(&asmOutput, "output", "o", "", "output object file")
	asmCmd.Flags().BoolVar(&asmListing, "listing", false, "also write a text dump of the object")
}

func writeListing(f *obj.File, path string) error {
	return writeWith(path, f.Dump)
}

func writeWith(path string, fn func(w io.Writer) error) error {
	fd, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(fd); err != nil {
		fd.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return fd.Close()
}
