// Package runlog keeps a transcript of a run and writes it to disk once, at
// the end of the run.
package runlog

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileName is the conventional transcript name for a cluster.
func FileName(project, region, cluster string) string {
	return fmt.Sprintf("%s-%s-%s.log", project, region, cluster)
}

// Log accumulates the transcript in memory. It is an io.Writer so tables and
// other console output can be teed into it.
type Log struct {
	path string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// New creates a Log that will be written to dir under the conventional name.
func New(dir, project, region, cluster string) *Log {
	return &Log{path: filepath.Join(dir, FileName(project, region, cluster))}
}

// Path is where Close writes the transcript.
func (l *Log) Path() string {
	return l.path
}

func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, errors.New("run log already written")
	}
	return l.buf.Write(p)
}

// Close writes the transcript to disk. Calls after the first are no-ops.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create run log directory")
		}
	}
	if err := ioutil.WriteFile(l.path, l.buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write run log %s", l.path)
	}
	return nil
}

// Hook returns a logrus hook appending every entry to the transcript.
func (l *Log) Hook() logrus.Hook {
	return &Hook{
		output: l,
		levels: logrus.AllLevels,
		formatter: &logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: true,
		},
	}
}

// Hook directs matched levels to its configured output with its own
// formatter, independent of the logger's.
type Hook struct {
	output    *Log
	levels    []logrus.Level
	formatter logrus.Formatter
}

// Fire is invoked when logrus tries to log any message.
func (hook *Hook) Fire(entry *logrus.Entry) error {
	line, err := hook.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = hook.output.Write(line)
	return err
}

// Levels returns the log levels this hook is being applied to.
func (hook *Hook) Levels() []logrus.Level {
	return hook.levels
}
