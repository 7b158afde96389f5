package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/vk/modgate/internal/relay"
)

// WorkerIDEnv names the environment variable carrying a worker's slot id.
const WorkerIDEnv = "MODGATE_WORKER_ID"

// Process is a running worker as seen by the supervisor.
type Process interface {
	PID() int
	Conn() *relay.Conn
	// Wait blocks until the process exits.
	Wait() error
	// Stop asks the process to shut down gracefully.
	Stop() error
	// Kill terminates the process immediately.
	Kill() error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, id string) (Process, error)
}

// ExecSpawner re-executes a binary as a worker. The relay runs over the
// child's stdin and stdout; ExtraFiles become descriptors 3, 4, ... in the
// child.
type ExecSpawner struct {
	Path       string
	Args       []string
	Env        []string
	ExtraFiles []*os.File
	Stderr     io.Writer
}

type execProcess struct {
	cmd  *exec.Cmd
	conn *relay.Conn
	// parent ends of the relay pipes
	toChild   *os.File
	fromChild *os.File
}

// Spawn starts one worker for slot id.
func (s *ExecSpawner) Spawn(ctx context.Context, id string) (Process, error) {
	childIn, toChild, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create relay pipe: %w", err)
	}
	fromChild, childOut, err := os.Pipe()
	if err != nil {
		childIn.Close()
		toChild.Close()
		return nil, fmt.Errorf("failed to create relay pipe: %w", err)
	}

	cmd := exec.Command(s.Path, s.Args...)
	cmd.Env = append(append(os.Environ(), s.Env...), WorkerIDEnv+"="+id)
	cmd.Stdin = childIn
	cmd.Stdout = childOut
	cmd.Stderr = s.Stderr
	cmd.ExtraFiles = s.ExtraFiles

	startErr := cmd.Start()
	// The child holds its own copies now.
	childIn.Close()
	childOut.Close()
	if startErr != nil {
		toChild.Close()
		fromChild.Close()
		return nil, fmt.Errorf("failed to start worker %s: %w", id, startErr)
	}

	return &execProcess{
		cmd:       cmd,
		conn:      relay.NewConn(fromChild, toChild),
		toChild:   toChild,
		fromChild: fromChild,
	}, nil
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Conn() *relay.Conn { return p.conn }

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	p.toChild.Close()
	p.fromChild.Close()
	return err
}

func (p *execProcess) Stop() error { return p.cmd.Process.Signal(syscall.SIGTERM) }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }
