package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/app"
	"parley/pkg/models"
)

func newSendCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send a single message and wait for acknowledgment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, source, Version, app.Options{})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := a.Start(ctx); err != nil {
				return err
			}
			defer a.Close(context.Background())

			m := a.Service.Send(strings.Join(args, " "), models.KindText, nil)
			fmt.Fprintf(cmd.OutOrStdout(), "submitted %s\n", m.ClientID)

			deadline := time.After(wait)
			tick := time.NewTicker(200 * time.Millisecond)
			defer tick.Stop()
			for {
				select {
				case <-deadline:
					status, _ := a.Service.Status(m.ClientID)
					return fmt.Errorf("message still %s after %s", status, wait)
				case <-tick.C:
					switch status, _ := a.Service.Status(m.ClientID); status {
					case models.StatusAcknowledged:
						fmt.Fprintln(cmd.OutOrStdout(), "acknowledged")
						return nil
					case models.StatusFailed:
						return fmt.Errorf("transmission failed; retry with a new send")
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for acknowledgment")
	return cmd
}
