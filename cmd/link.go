/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gmofishsauce/ss32/pkg/link"
	"github.com/gmofishsauce/ss32/pkg/obj"
)

// placements collects --place section@address flags.
type placements map[string]uint32

var _ pflag.Value = placements(nil)

func (p placements) String() string {
	var s []string
	for name, addr := range p {
		s = append(s, fmt.Sprintf("%s@0x%X", name, addr))
	}
	sort.Strings(s)
	return strings.Join(s, ",")
}

func (p placements) Set(value string) error {
	name, addr, ok := strings.Cut(value, "@")
	if !ok || name == "" {
		return fmt.Errorf("expected section@address, got %q", value)
	}
	if _, dup := p[name]; dup {
		return fmt.Errorf("section %s placed twice", name)
	}
	a, err := parseHex(addr)
	if err != nil {
		return err
	}
	p[name] = a
	return nil
}

func (p placements) Type() string {
	return "section@addr"
}

// parseHex reads a 32-bit hex number with or without a 0x prefix.
func parseHex(s string) (uint32, error) {
	t := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseUint(t, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint32(n), nil
}

var (
	linkPlaces      = placements{}
	linkOutput      string
	linkHex         bool
	linkRelocatable bool
	linkListing     bool
	linkHexdump     bool
)

// linkCmd represents the link command
var linkCmd = &cobra.Command{
	Use:   "link [--place section@addr]... (--hex | --relocatable) objects...",
	Short: "Link relocatable objects",
	Long: `Link combines relocatable objects. With --hex it produces an
executable: sections named by --place start at the given hex address
and all other sections follow the highest placed one. With
--relocatable it produces one relocatable object and ignores
placements. With neither flag link does nothing.

Sections with the same name are concatenated in command line order.
A global symbol may be defined by only one input.`,

	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if linkHex && linkRelocatable {
			return fmt.Errorf("--hex and --relocatable are mutually exclusive")
		}
		if !linkHex && !linkRelocatable {
			glog.V(1).Info("link: neither --hex nor --relocatable given, nothing to do")
			return nil
		}
		out := linkOutput
		if out == "" {
			out = "output.hex"
			if linkRelocatable {
				out = "output.o"
			}
		}

		l := link.New(link.Options{Places: linkPlaces, Relocatable: linkRelocatable})
		for _, name := range args {
			f, err := obj.ReadFile(name)
			if err != nil {
				return err
			}
			if err := l.AddFile(name, f); err != nil {
				return err
			}
		}
		f, err := l.Link()
		if err != nil {
			return err
		}
		if err := f.WriteFile(out); err != nil {
			return err
		}
		glog.V(1).Infof("wrote %s", out)
		if linkListing {
			if err := writeListing(f, out+".txt"); err != nil {
				return err
			}
		}
		if linkHexdump && !linkRelocatable {
			if err := writeWith(out+".hexdump", f.WriteHexDump); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(linkCmd)
	flags := linkCmd.Flags()
	flags.Var(linkPlaces, "place", "place a section at a hex address (repeatable)")
	flags.StringVarP(&linkOutput, "output", "o", "", "output file (default output.hex or output.o)")
	flags.BoolVar(&linkHex, "hex", false, "produce an executable")
	flags.BoolVar(&linkRelocatable, "relocatable", false, "produce a relocatable object")
	flags.BoolVar(&linkListing, "listing", false, "also write a text dump of the output")
	flags.BoolVar(&linkHexdump, "hexdump", false, "also write a memory hex dump of the executable")
}
