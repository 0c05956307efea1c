package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/rxbridge"
	"github.com/cwbudde/rxbridge/internal/state"
)

func newReturnCommand(ctx *commandContext) *cobra.Command {
	var (
		projectPath      string
		envelopePath     string
		returnedPath     string
		requireProcessed bool
		dryRun           bool
	)

	cmd := &cobra.Command{
		Use:   "return",
		Short: "Replace the exported region with the processed audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := loadProject(projectPath)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			return ctx.withStore(func(store *rxbridge.EnvelopeStore, _ *state.Slot) error {
				res, err := rxbridge.Return(project, rxbridge.ReturnOptions{
					Store:            store,
					Prompt:           sidecarPrompt(cmd.InOrStdin(), out),
					EnvelopePath:     strings.TrimSpace(envelopePath),
					ReturnedPath:     returnedPath,
					ExtractedSuffix:  cfg.Exchange.ExtractedSuffix,
					RequireProcessed: requireProcessed,
					NameSuffix:       cfg.Exchange.NameSuffix,
					DryRun:           dryRun,
					Logger:           ctx.logger,
				})
				if res == nil {
					return err
				}

				if dryRun {
					fmt.Fprintf(out, "Dry run, reading %s\n", res.Source)
					fmt.Fprintln(out, renderPlan(res.Plan))
					return nil
				}

				// the host is already changed when only the envelope stamp failed
				if serr := project.Save(projectPath); serr != nil {
					return fmt.Errorf("save project: %w", serr)
				}

				fmt.Fprintf(out, "Created %d clips from %s\n", len(res.Created), res.Source)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&projectPath, "project", "p", "", "Project document to update")
	cmd.Flags().StringVarP(&envelopePath, "envelope", "e", "", "Envelope sidecar to return instead of the stored envelope")
	cmd.Flags().StringVarP(&returnedPath, "file", "f", "", "File saved by the restoration tool (defaults to the exchange file)")
	cmd.Flags().BoolVar(&requireProcessed, "require-processed", false, "Fail when the file holds no appended container")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the planned changes without applying them")
	return cmd
}

func renderPlan(plan rxbridge.Plan) string {
	var rows [][]string
	for _, tp := range plan.Tracks {
		for _, a := range tp.Clears {
			action := "delete"
			if a.SplitsStart() || a.SplitsEnd() {
				action = "cut"
			}
			rows = append(rows, []string{
				tp.Name, action, string(a.Clip), formatSeconds(a.CutStart), formatSeconds(a.CutEnd), "",
			})
		}
		for _, ins := range tp.Inserts {
			rows = append(rows, []string{
				tp.Name, "insert", ins.Name + plan.NameSuffix,
				formatSeconds(ins.Position), formatSeconds(ins.Position + ins.Length), ins.ChanMode.String(),
			})
		}
	}

	mode := "full"
	if plan.Partial {
		mode = "partial"
	}

	headers := []string{"Track", "Action", "Clip", "From", "To", "Mode"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
	summary := fmt.Sprintf("%s replacement of %s-%s", mode, formatSeconds(plan.Start), formatSeconds(plan.End))
	if n := len(plan.Consumed); n > 0 {
		summary += fmt.Sprintf(", %d clips already replaced", n)
	}
	return summary + "\n" + renderTable(headers, rows, aligns)
}
