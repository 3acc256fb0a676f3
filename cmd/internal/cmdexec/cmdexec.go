package cmdexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

type Error struct {
	Cmd      string
	Args     []string
	Dir      string
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("(in %s) %s %s", e.Dir, e.Cmd, strings.Join(e.Args, " "))
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit %d\n%s", msg, e.ExitCode, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("%s: exit %d", msg, e.ExitCode)
}

// Command describes one external process invocation. Env entries ("KEY=value")
// are appended to the current process environment, so later entries win.
type Command struct {
	Dir    string
	Name   string
	Args   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes commands. The pipeline depends on this interface so tests can
// record invocations instead of spawning cdk or git.
type Runner interface {
	Output(ctx context.Context, cmd Command) (string, error)
	Run(ctx context.Context, cmd Command) error
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

var _ Runner = Exec{}

func (Exec) Output(ctx context.Context, c Command) (string, error) {
	if !filepath.IsAbs(c.Dir) {
		return "", errors.Newf("cmdexec: dir must be absolute, got %q", c.Dir)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = environ(c.Env)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", wrapErr(c, err, stderr.String())
	}
	return string(out), nil
}

func (Exec) Run(ctx context.Context, c Command) error {
	if !filepath.IsAbs(c.Dir) {
		return errors.Newf("cmdexec: dir must be absolute, got %q", c.Dir)
	}

	stdout := c.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := c.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var stderrBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = environ(c.Env)
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, &stderrBuf)

	if err := cmd.Run(); err != nil {
		return wrapErr(c, err, stderrBuf.String())
	}
	return nil
}

// Output runs name with args in dir and returns its stdout.
func Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	return Exec{}.Output(ctx, Command{Dir: dir, Name: name, Args: args})
}

// Run runs name with args in dir, streaming output to the terminal.
func Run(ctx context.Context, dir, name string, args ...string) error {
	return Exec{}.Run(ctx, Command{Dir: dir, Name: name, Args: args})
}

func environ(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}

func wrapErr(c Command, err error, stderr string) error {
	exitCode := 1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
		if stderr == "" {
			stderr = string(exitErr.Stderr)
		}
	}
	return &Error{
		Cmd:      c.Name,
		Args:     c.Args,
		Dir:      c.Dir,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}
