package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// sidecarPrompt asks an interactive terminal for the envelope sidecar used
// when the state slot is empty.
func sidecarPrompt(in io.Reader, out io.Writer) func() (string, error) {
	return func() (string, error) {
		if !isTerminal(in) {
			return "", nil
		}

		fmt.Fprint(out, "No stored envelope. Path to envelope sidecar: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read sidecar path: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
