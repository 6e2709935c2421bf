package gcloud

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/logging"
	"github.com/sirupsen/logrus"
)

// CommandError is returned when gcloud exits unsuccessfully or cannot be
// started.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// executer runs gcloud with the given arguments and returns its combined
// output.
type executer interface {
	execute(ctx context.Context, args []string) ([]byte, error)
}

type executable struct {
	bin string
	log logging.Logger
}

func (e *executable) execute(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.bin, args...)

	// gcloud writes warnings to stderr; they are kept in the same stream and
	// stripped later by the JSON extraction.
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if logging.Debuggable {
		e.log.WithFields(logrus.Fields{
			"cmd": cmd.String(),
		}).Debug("Executing")
	}

	if err := cmd.Run(); err != nil {
		if logging.Debuggable {
			e.log.WithFields(logrus.Fields{
				"cmd":    cmd.String(),
				"output": buf.String(),
			}).WithError(err).Error("Command errored during run")
		}
		return buf.Bytes(), &CommandError{
			Args:   append([]string{e.bin}, args...),
			Output: buf.String(),
			Err:    err,
		}
	}
	if logging.Debuggable {
		e.log.WithFields(logrus.Fields{
			"cmd":    cmd.String(),
			"output": buf.String(),
		}).Debug("Command completed successfully")
	}
	return buf.Bytes(), nil
}
