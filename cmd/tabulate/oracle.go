// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// consoleOracle implements tiebreak.Oracle by prompting an operator on
// stdin/stdout, the concrete form of spec §9's "interactive side effect"
// note. It refuses to run when stdin is not a TTY, since an unattended
// batch run with an Interactive tie-break mode configured against a pipe
// would otherwise hang forever.
type consoleOracle struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsoleOracle() (*consoleOracle, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil, fmt.Errorf("interactive tie-break mode requires an attached terminal")
	}
	return &consoleOracle{in: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func (o *consoleOracle) ChooseLoser(tied []string, round int, tallies map[string]*big.Rat) (string, error) {
	return o.prompt("eliminate", tied, round, tallies)
}

func (o *consoleOracle) ChooseWinner(tied []string, round int, tallies map[string]*big.Rat) (string, error) {
	return o.prompt("elect", tied, round, tallies)
}

func (o *consoleOracle) prompt(verb string, tied []string, round int, tallies map[string]*big.Rat) (string, error) {
	fmt.Fprintf(o.out, "\nRound %d: tie to %s among:\n", round, verb)
	for i, id := range tied {
		fmt.Fprintf(o.out, "  [%d] %s (%s votes)\n", i+1, id, tallies[id].RatString())
	}
	fmt.Fprintf(o.out, "Choose 1-%d: ", len(tied))

	for {
		line, err := o.in.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("reading operator choice: %w", err)
		}
		line = strings.TrimSpace(line)
		for i, id := range tied {
			if line == fmt.Sprintf("%d", i+1) || line == id {
				return id, nil
			}
		}
		fmt.Fprintf(o.out, "unrecognized choice %q, try again: ", line)
	}
}
