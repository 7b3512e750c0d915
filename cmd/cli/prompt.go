package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// assumeYes skips confirmation of destructive commands
var assumeYes bool

var errNotConfirmed = errors.New("aborted")

// confirmDestructive asks before an irreversible operation. Without a
// terminal on stdin it refuses unless --yes was given.
func confirmDestructive(what string) error {
	if assumeYes {
		return nil
	}
	return confirm(os.Stdin, os.Stderr, term.IsTerminal(int(os.Stdin.Fd())), what)
}

func confirm(in io.Reader, out io.Writer, interactive bool, what string) error {
	if !interactive {
		return fmt.Errorf("%s needs confirmation: pass --yes when not running in a terminal", what)
	}
	fmt.Fprintf(out, "%s %s. Continue? (y/n) ", yellow("!"), what)
	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	switch strings.TrimSpace(strings.ToLower(input)) {
	case "y", "yes":
		return nil
	}
	return errNotConfirmed
}
