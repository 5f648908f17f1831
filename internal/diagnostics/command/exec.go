package command

import (
	"bytes"
	"io"
	"os/exec"
	"strings"
)

// tailSize bounds the output kept in memory for error messages.
const tailSize = 4 << 10

// result captures the trailing output of a command run.
type result struct {
	Stdout string
	Stderr string
}

// runStreaming sends the command's stdout and stderr to sink while keeping the
// last few kilobytes of each for later inspection.
func runStreaming(cmd *exec.Cmd, sink io.Writer) (result, error) {
	stdout := &tailBuffer{limit: tailSize}
	stderr := &tailBuffer{limit: tailSize}
	cmd.Stdout = io.MultiWriter(sink, stdout)
	cmd.Stderr = io.MultiWriter(sink, stderr)

	err := cmd.Run()

	return result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}, err
}

// primaryOutput returns stderr if present, otherwise stdout.
func primaryOutput(res result) string {
	if res.Stderr != "" {
		return res.Stderr
	}
	return res.Stdout
}

type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.limit {
		p = p[len(p)-t.limit:]
	}
	if over := t.buf.Len() + len(p) - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
