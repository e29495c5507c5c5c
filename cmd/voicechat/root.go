package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "voicechat",
	Short: "Peer-to-peer voice chat client",
	Long: `voicechat joins named chats on a relay and talks to every other
participant over a direct WebRTC connection. A local HTTP API starts,
stops and mutes the session.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, relayCmd, versionCmd)
}
