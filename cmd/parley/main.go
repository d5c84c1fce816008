package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"parley/pkg/config"
	"parley/pkg/store"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// global flags shared by subcommands
var (
	flagConfig  string
	flagBackend string
	flagConv    string
	flagDataDir string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parley",
		Short: "Parley — group-chat client with an optimistic sync core",
		Long:  "Parley keeps a locally responsive, duplicate-free conversation view while messages and the local identity reconcile against the backend in the background.",
	}
	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "backend base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&flagConv, "conversation", "", "conversation id (overrides config)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data", "", "local data directory (overrides config)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newIdentityCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "parley %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// loadConfig merges file, env, defaults and explicit flags.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := config.ResolveConfigPath(flagConfig, cmd.Flags().Changed("config"))
	cfg, source, err := config.LoadEffective(path)
	if err != nil {
		return nil, "", err
	}
	// flags win over config and env
	if flagBackend != "" {
		cfg.Backend.BaseURL = flagBackend
	}
	if flagConv != "" {
		cfg.Client.Conversation = flagConv
	}
	if flagDataDir != "" {
		cfg.Storage.DataDir = flagDataDir
	}
	return cfg, source, nil
}

// openStore opens the local pebble store under the configured data dir.
func openStore(cfg *config.Config) error {
	return store.Open(filepath.Join(cfg.Storage.DataDir, "store"))
}

func main() {
	_ = godotenv.Load(".env")
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
