// Package main is the entry point for the Lingua Gateway.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/compresr/lingua-gateway/internal/gateway"
)

const appName = "lingua-gateway"

// ANSI color codes
const (
	linguaBlue = "\033[38;2;38;110;190m"
	bold       = "\033[1m"
	reset      = "\033[0m"
)

const banner = `
  _ _                                        _
 | (_)_ __   __ _ _   _  __ _    __ _  __ _| |_ _____      ____ _ _   _
 | | | '_ \ / _' | | | |/ _' |  / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | | | | | | (_| | |_| | (_| | | (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |_|_|_| |_|\__, |\__,_|\__,_|  \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
            |___/                |___/                            |___/
`

func printBanner() {
	fmt.Print(linguaBlue + bold + banner + reset + "\n")
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	configEnv := filepath.Join(homeDir, ".config", appName, ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Local .env does not override values already set
	_ = godotenv.Load()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Anthropic API proxy that compresses message text",
		Long: `lingua-gateway sits between a client and the Anthropic Messages API.
Long text and code in each request is compressed with LLMLingua-2 before
the request is forwarded; everything else passes through unchanged.`,
		Version:       gateway.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newSavingsCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, gateway.Version)
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the built-in default configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := getEmbeddedConfig(defaultConfigName)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
