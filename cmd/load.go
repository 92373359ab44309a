/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/gmofishsauce/ss32/pkg/download"
	"github.com/gmofishsauce/ss32/pkg/obj"
)

var (
	loadPort string
	loadBaud int
	loadRun  string
)

// loadCmd represents the load command
var loadCmd = &cobra.Command{
	Use:   "load [--port device] [--run addr] executable",
	Short: "Download an executable to the board",
	Long: `Load opens the serial line to the board, waits for it to come out
of reset, synchronizes, and writes every loadable section of the
executable to memory at its linked address. With --run the board then
starts executing at the given hex address.

Interrupting the command stops the download between pages.`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var start *uint32
		if loadRun != "" {
			a, err := parseHex(loadRun)
			if err != nil {
				return err
			}
			start = &a
		}
		f, err := obj.ReadFile(args[0])
		if err != nil {
			return err
		}

		port, err := download.Open(loadPort, loadBaud)
		if err != nil {
			return err
		}
		defer port.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := download.Download(ctx, port, f, start); err != nil {
			return err
		}
		fmt.Println("download complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringVar(&loadPort, "port", "/dev/cu.usbserial-AQ0169PT", "serial device")
	loadCmd.Flags().IntVar(&loadBaud, "baud", 115200, "baud rate")
	loadCmd.Flags().StringVar(&loadRun, "run", "", "start execution at this hex address")
}
