// Package executil is a small extension of os/exec with first-class
// cancellation, used anywhere this daemon shells out to an external
// binary (ostree, flatpak) on a worker goroutine.
package executil

import (
	"bytes"
	"context"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
)

// Cmd wraps exec.Cmd with a cancellation token and safe repeated Wait.
type Cmd struct {
	*exec.Cmd
	cancel context.CancelFunc
	wait   sync.Once
	waitErr error
}

// Command builds a Cmd bound to ctx; cancelling ctx (or calling Kill)
// terminates the process.
func Command(ctx context.Context, name string, arg ...string) *Cmd {
	ctx, cancel := context.WithCancel(ctx)
	return &Cmd{
		Cmd:    exec.CommandContext(ctx, name, arg...),
		cancel: cancel,
	}
}

// Wait is safe to call more than once; only the first call actually waits.
func (c *Cmd) Wait() error {
	c.wait.Do(func() {
		c.waitErr = c.Cmd.Wait()
	})
	return c.waitErr
}

// Kill cancels the command's context and reaps the process.
func (c *Cmd) Kill() error {
	c.cancel()
	err := c.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// Run starts the command, captures combined output, and returns an
// error wrapping that output on non-zero exit so callers don't need a
// separate CombinedOutput call to diagnose a failure.
func RunCaptured(ctx context.Context, name string, arg ...string) ([]byte, error) {
	cmd := Command(ctx, name, arg...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), errors.Wrapf(err, "%s %v: %s", name, arg, out.String())
	}
	return out.Bytes(), nil
}
