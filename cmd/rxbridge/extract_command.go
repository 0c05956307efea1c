package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/rxbridge"
)

func newExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "extract SRC [DST]",
		Short:       "List the RIFF containers in a file and cut out the last one",
		Args:        cobra.RangeArgs(1, 2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]

			containers, err := rxbridge.ListContainers(src)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(containers))
			for i, c := range containers {
				last := ""
				if c.Terminal {
					last = "yes"
				}
				rows = append(rows, []string{
					fmt.Sprint(i), fmt.Sprint(c.Offset), fmt.Sprint(c.Size), string(c.Form[:]), last,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Offset", "Size", "Form", "Last"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))

			if len(args) < 2 {
				return nil
			}

			c, err := rxbridge.ExtractLast(src, args[1])
			if errors.Is(err, rxbridge.ErrNoProcessedAudio) {
				fmt.Fprintln(out, "Single container, nothing to extract")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Wrote %d bytes to %s\n", c.End()-c.Offset, args[1])
			return nil
		},
	}
}
