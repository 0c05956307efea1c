// This tool lists the RIFF containers concatenated in a file, as written by
// restoration tools that append each save, and can cut out the last one.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/cwbudde/rxbridge"
)

const missingPathMessage = "You must pass the path of the file to inspect"

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err == nil {
		return
	}

	if errors.Is(err, errMissingPath) {
		fmt.Println(missingPathMessage)
		os.Exit(1)
	}

	log.Fatal(err)
}

var errMissingPath = errors.New("missing path argument")

func run(args []string, out io.Writer) error {
	flagSet := flag.NewFlagSet("rifftail", flag.ContinueOnError)
	extract := flagSet.String("extract", "", "write the last container to this path")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if flagSet.NArg() < 1 {
		return errMissingPath
	}

	path := flagSet.Arg(0)

	containers, err := rxbridge.ListContainers(path)
	if err != nil {
		return err
	}

	for i, c := range containers {
		marker := ""
		if c.Terminal {
			marker = " (last)"
		}

		fmt.Fprintf(out, "[%d] offset=%d size=%d form=%q%s\n", i, c.Offset, c.Size, string(c.Form[:]), marker)
	}

	if *extract == "" {
		return nil
	}

	last, err := rxbridge.ExtractLast(path, *extract)
	if errors.Is(err, rxbridge.ErrNoProcessedAudio) {
		fmt.Fprintln(out, "Single container, nothing to extract")
		return nil
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %d bytes to %s\n", last.End()-last.Offset, *extract)

	return nil
}
