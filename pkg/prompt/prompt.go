// Package prompt asks the operator yes/no questions.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Confirmer answers yes/no questions on behalf of the operator.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// Terminal asks questions on out and reads answers, one per line, from in.
// Only "y" (case-insensitive, surrounding space ignored) is affirmative.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a Terminal over the given streams, usually stdin and
// stdout.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) Confirm(question string) (bool, error) {
	if _, err := fmt.Fprintf(t.out, "%s (y/n): ", question); err != nil {
		return false, errors.Wrap(err, "write prompt")
	}
	line, err := t.in.ReadString('\n')
	switch {
	case err == io.EOF && line == "":
		// No operator on the other end, never assume consent.
		return false, nil
	case err != nil && err != io.EOF:
		return false, errors.Wrap(err, "read answer")
	}
	return strings.ToLower(strings.TrimSpace(line)) == "y", nil
}

// Always answers every question with answer.
type Always bool

func (a Always) Confirm(string) (bool, error) {
	return bool(a), nil
}
