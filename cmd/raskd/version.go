package main

import (
	"fmt"

	"github.com/raskfs/rask/pkg/proto"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the supported protocol version and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("raskd: protocol version 0x%02x\n", proto.SupportedVersion)
		return nil
	},
}
