package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/rxbridge"
	"github.com/cwbudde/rxbridge/internal/state"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var projectPath string
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the selected clips into one multichannel exchange file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dir) == "" {
				return fmt.Errorf("--dir is required")
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve --dir: %w", err)
			}

			project, err := loadProject(projectPath)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			return ctx.withStore(func(store *rxbridge.EnvelopeStore, _ *state.Slot) error {
				env, err := rxbridge.Export(project, rxbridge.ExportOptions{
					Dir:         absDir,
					WavName:     cfg.Exchange.WavName,
					BlockFrames: cfg.Exchange.BlockFrames,
					Store:       store,
					Logger:      ctx.logger,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Exported %d clips to %s\n", len(env.Items), env.WavPath)
				fmt.Fprintf(out, "Envelope written to %s\n", store.SidecarPath(env.WavPath))
				fmt.Fprintln(out, renderEnvelope(env, project))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectPath, "project", "p", "", "Project document to export from")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory receiving the exchange file")
	return cmd
}

type trackNamer interface {
	Track(rxbridge.TrackID) (rxbridge.Track, bool)
}

// renderEnvelope lists the channel block of every record. Track names come
// from tracks when it resolves them.
func renderEnvelope(env *rxbridge.Envelope, tracks trackNamer) string {
	rows := make([][]string, 0, len(env.Items))
	for _, rec := range env.Items {
		name := string(rec.TrackGUID)
		if tracks != nil {
			if t, ok := tracks.Track(rec.TrackGUID); ok && t.Name != "" {
				name = t.Name
			}
		}

		last := rec.FirstOutCh + rec.PlaybackChannels - 1
		rows = append(rows, []string{
			name,
			string(rec.ItemGUID),
			fmt.Sprintf("%d-%d", rec.FirstOutCh+1, last+1),
			rec.ChanMode.String(),
			formatSeconds(rec.Position),
			formatSeconds(rec.Length),
		})
	}

	headers := []string{"Track", "Clip", "Channels", "Mode", "Position", "Length"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight}

	summary := fmt.Sprintf("%d channels at %d Hz, range %s-%s",
		env.NumChannels, env.SampleRate, formatSeconds(env.RangeStart), formatSeconds(env.RangeEnd))
	if env.Partial() {
		summary += " (partial)"
	}
	return summary + "\n" + renderTable(headers, rows, aligns)
}
