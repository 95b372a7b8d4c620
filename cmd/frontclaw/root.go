// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Frontclaw Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root frontclaw command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "frontclaw",
		Short:         "Frontclaw — plugin-orchestrated conversational AI backend",
		Long:          "Frontclaw hosts untrusted extension plugins in sandboxes and sequences them through the chat pipeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}
