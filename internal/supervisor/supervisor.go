// internal/supervisor/supervisor.go
package supervisor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/jason-s-yu/arcade/internal/errs"
	"github.com/sirupsen/logrus"
)

// Spec describes one payload server invocation.
type Spec struct {
	Executable string
	Args       []string
	Dir        string
}

// Handle is a running payload process.
type Handle interface {
	Pid() int
	// Terminate asks the process to stop and waits up to grace for it. It
	// reports whether the process has exited.
	Terminate(grace time.Duration) bool
	// Kill stops the process immediately and waits for it to exit.
	Kill() error
	Done() <-chan struct{}
}

// Supervisor starts payload game servers.
type Supervisor struct {
	// ScriptRuntime runs entries that are scripts rather than executables.
	ScriptRuntime string
	// BindHost is passed to the payload as --host.
	BindHost string

	logger *logrus.Logger
}

// New creates a Supervisor.
func New(scriptRuntime, bindHost string, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Supervisor{ScriptRuntime: scriptRuntime, BindHost: bindHost, logger: logger}
}

// Launch starts spec. Failures are KindLaunch errors.
func (s *Supervisor) Launch(spec Spec) (Handle, error) {
	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir

	entry := s.logger.WithFields(logrus.Fields{
		"exe": spec.Executable,
		"dir": spec.Dir,
	})
	out := entry.WriterLevel(logrus.InfoLevel)
	cmd.Stdout = out
	cmd.Stderr = out
	// grandchildren holding the output pipe must not block Wait forever
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		_ = out.Close()
		return nil, errs.Wrap(errs.KindLaunch, "Failed to launch game server", err)
	}

	p := &Process{
		cmd:    cmd,
		done:   make(chan struct{}),
		out:    out,
		logger: entry.WithField("pid", cmd.Process.Pid),
	}
	go p.wait()

	p.logger.Info("payload server started")
	return p, nil
}

// Process is a payload started by Launch.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	out  io.Closer

	logger *logrus.Entry
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	_ = p.out.Close()
	close(p.done)

	p.logger.WithError(err).Info("payload server exited")
}

func (p *Process) Pid() int { return p.cmd.Process.Pid }

func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Terminate(grace time.Duration) bool {
	select {
	case <-p.done:
		return true
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-p.done
			return true
		}
		// no SIGTERM on this platform
		p.logger.WithError(err).Debug("terminate signal failed")
		return false
	}

	select {
	case <-p.done:
		return true
	case <-time.After(grace):
		return false
	}
}

func (p *Process) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

// Stop terminates h gracefully and force-kills it if it outlives grace. A
// nil error means the process has exited.
func Stop(h Handle, grace time.Duration) error {
	if h == nil || h.Terminate(grace) {
		return nil
	}
	return h.Kill()
}
