package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "chathub",
	Short:         "Chat bot hub: text commands, todos and reminders over Telegram or WhatsApp",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(todoCmd)
	rootCmd.AddCommand(remindCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(emailCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

