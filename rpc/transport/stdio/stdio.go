package stdio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/pubkey/storagebench/rpc/transport/base"
)

var log = logger.GetLogger("transport/rpc")

// killTimeout is how long Close waits for the child to exit after closing its stdin
const killTimeout = 5 * time.Second

// --------------------------------------------------------------------------
// Proxy side
// --------------------------------------------------------------------------

// childPipes is the byte stream to a child process
type childPipes struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

func (p *childPipes) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *childPipes) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close closes the stdin of the child, which makes a worker exit, and waits for it.
// A child that does not exit in time is killed.
func (p *childPipes) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()

		select {
		case err := <-done:
			p.closeErr = err
		case <-time.After(killTimeout):
			log.Warningf("Worker process %d did not exit, killing it", p.cmd.Process.Pid)
			_ = p.cmd.Process.Kill()
			p.closeErr = <-done
		}

		var exitErr *exec.ExitError
		if errors.As(p.closeErr, &exitErr) {
			p.closeErr = fmt.Errorf("worker process exited: %w", exitErr)
		}
	})
	return p.closeErr
}

// Spawn starts path with args as a child process and frames its stdin and stdout.
// Closing the returned connection ends the child.
func Spawn(path string, args ...string) (transport.IConn, error) {
	cmd := exec.Command(path, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %s: %w", path, err)
	}

	log.Infof("Started worker process %d (%s)", cmd.Process.Pid, path)
	return base.NewStreamConn(&childPipes{cmd: cmd, stdin: stdin, stdout: stdout}), nil
}

// --------------------------------------------------------------------------
// Worker side
// --------------------------------------------------------------------------

// ownPipes is the byte stream of the own process
type ownPipes struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (p ownPipes) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p ownPipes) Write(b []byte) (int, error) { return p.out.Write(b) }

func (p ownPipes) Close() error {
	return errors.Join(p.in.Close(), p.out.Close())
}

// ServerConn frames stdin and stdout of the current process. Nothing else may
// write to stdout while the connection is in use.
func ServerConn() transport.IConn {
	return NewServerConn(os.Stdin, os.Stdout)
}

// NewServerConn frames the given input and output streams
func NewServerConn(in io.ReadCloser, out io.WriteCloser) transport.IConn {
	return base.NewStreamConn(ownPipes{in: in, out: out})
}
