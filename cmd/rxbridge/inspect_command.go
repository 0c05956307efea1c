package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/rxbridge"
	"github.com/cwbudde/rxbridge/internal/state"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var envelopePath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the stored envelope or a sidecar file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *rxbridge.EnvelopeStore, slot *state.Slot) error {
				var (
					env    *rxbridge.Envelope
					stored time.Time
					inSlot bool
					err    error
				)
				if path := strings.TrimSpace(envelopePath); path != "" {
					env, err = store.LoadSidecar(path)
				} else if env, err = store.Load(); err == nil {
					stored, inSlot, err = slot.UpdatedAt(rxbridge.EnvelopeKey)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Exchange file: %s\n", env.WavPath)
				fmt.Fprintf(out, "Exported: %s\n", env.Created().Format(time.RFC3339))
				if inSlot {
					fmt.Fprintf(out, "Stored: %s\n", stored.Local().Format(time.RFC3339))
				}
				if env.ReturnedAt != nil {
					fmt.Fprintln(out, "Returned: yes")
				}
				fmt.Fprintln(out, renderEnvelope(env, nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&envelopePath, "envelope", "e", "", "Read this sidecar instead of the stored envelope")
	return cmd
}
