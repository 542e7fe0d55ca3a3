package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "cardflow",
		Short:        "Card payment authorization with a cardholder challenge",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("env", "dev", "environment: prod logs JSON, anything else text")

	rootCmd.AddCommand(issuerCmd())
	rootCmd.AddCommand(acquirerCmd())
	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(merchantCmd())
	rootCmd.AddCommand(enrollCmd())
	rootCmd.AddCommand(checkoutCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
