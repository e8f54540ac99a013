package providers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/buildloop/buildloop/internal/logging"
)

const (
	maxLineBytes   = 16 * 1024 * 1024
	stderrTailSize = 4096
)

// processSpec describes one provider invocation
type processSpec struct {
	args   []string
	dir    string
	env    []string
	exec   string
	usePTY bool
}

// process is a running provider binary whose output is read line by line
type process struct {
	cmd     *exec.Cmd
	out     io.ReadCloser
	ptmx    *os.File
	scanErr error
	stderr  *tailBuffer
	waitErr error
	waited  bool
}

func startProcess(ctx context.Context, spec processSpec) (*process, error) {
	cmd := exec.CommandContext(ctx, spec.exec, spec.args...)
	cmd.Dir = spec.dir
	if len(spec.env) > 0 {
		cmd.Env = append(os.Environ(), spec.env...)
	}

	p := &process{cmd: cmd, stderr: &tailBuffer{max: stderrTailSize}}

	logging.Logger.Debug("Starting provider process", "exec", spec.exec, "dir", spec.dir, "pty", spec.usePTY)

	if spec.usePTY {
		// Some providers only flush stream output line by line on a terminal
		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 60, Cols: 400})
		if err != nil {
			return nil, fmt.Errorf("failed to start %s under pty: %w", spec.exec, err)
		}
		p.ptmx = ptmx
		p.out = ptmx
		return p, nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout: %w", err)
	}
	cmd.Stderr = p.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.exec, err)
	}
	p.out = stdout
	return p, nil
}

// lines yields raw output lines until EOF or the consumer stops
func (p *process) lines() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		scanner := bufio.NewScanner(p.out)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			if !yield(scanner.Bytes()) {
				return
			}
		}
		err := scanner.Err()
		// A pty master reports EIO once the child side closes
		if err != nil && !(p.ptmx != nil && errors.Is(err, syscall.EIO)) {
			p.scanErr = err
		}
	}
}

// wait reaps the process once and returns its exit error
func (p *process) wait() error {
	if p.waited {
		return p.waitErr
	}
	p.waited = true
	p.waitErr = p.cmd.Wait()
	if p.ptmx != nil {
		_ = p.ptmx.Close()
	}
	return p.waitErr
}

// stop kills a process the consumer abandoned and reaps it
func (p *process) stop() {
	if p.waited {
		return
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.wait()
}

// stderrTail returns the last bytes written to stderr
func (p *process) stderrTail() string {
	return p.stderr.String()
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	buf []byte
	max int
	mu  sync.Mutex
}

func (b *tailBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, data...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(data), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
