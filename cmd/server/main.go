package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Agent crew orchestration backend",
	Long: `Orchestration backend for LLM agent crews: persistent conversation
threads, streaming job execution over WebSockets, scheduled tasks, and an
optional Telegram result relay.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
