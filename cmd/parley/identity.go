package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"parley/pkg/logger"
	"parley/pkg/store"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect or reset the persisted guest identity",
	}
	cmd.AddCommand(newIdentityShowCmd())
	cmd.AddCommand(newIdentityResetCmd())
	return cmd
}

func newIdentityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the persisted identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger.InitWithLevel("error")
			if err := openStore(cfg); err != nil {
				return err
			}
			defer store.Close()

			id, err := store.LoadIdentity()
			if err != nil {
				return err
			}
			if id == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no identity persisted")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "guest_id:    %s\n", id.GuestID)
			fmt.Fprintf(cmd.OutOrStdout(), "name:        %s\n", id.DisplayName)
			fmt.Fprintf(cmd.OutOrStdout(), "session_id:  %s\n", id.SessionID())
			fmt.Fprintf(cmd.OutOrStdout(), "provisioned: %v\n", id.Provisioned())
			return nil
		},
	}
}

func newIdentityResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Log out: clear the persisted identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger.InitWithLevel("error")
			if err := openStore(cfg); err != nil {
				return err
			}
			defer store.Close()

			if err := store.ClearIdentity(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "identity cleared")
			return nil
		},
	}
}
