// Package executor runs step commands on the host. The environment named by
// a step is advisory for the local executor: commands run directly in the
// host shell inside the run's working directory, the way a development
// deployment executes workflows without a container runtime.
package executor

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/benchflow/benchflow/pkg/logger"
)

// waitDelay bounds how long Run waits for output pipes after the command is
// killed. A descendant that escaped the process group could otherwise hold
// the pipes open and block Run past cancellation.
const waitDelay = 5 * time.Second

// Command describes one shell command to execute.
type Command struct {
	Environment string
	Line        string
	WorkDir     string
	Timeout     time.Duration
}

// Result is the outcome of one executed command. A non-zero exit code is a
// normal result, not an error; the error return of Run covers commands that
// could not be executed at all or were interrupted by the context.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor dispatches single commands. Implementations must honor context
// cancellation by terminating the running command.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Local executes commands through the host shell.
type Local struct {
	shell  string
	logger *logger.Logger
}

func NewLocal(log *logger.Logger) *Local {
	return &Local{
		shell:  "/bin/sh",
		logger: log.WithField("component", "local-executor"),
	}
}

// Run executes one command with sh -c in the command's working directory.
// Output streams are captured in full; step commands in workflow templates
// write their payloads to files, stdout/stderr exist for diagnostics.
func (l *Local) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(ctx, l.shell, "-c", cmd.Line)
	proc.Dir = cmd.WorkDir

	// The shell's children must die with it. Each command gets its own
	// process group and cancellation kills the whole group, not just sh.
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		return syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
	}
	proc.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	l.logger.Debug("executing command", "command", cmd.Line, "workDir", cmd.WorkDir, "environment", cmd.Environment)

	err := proc.Run()
	result := Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if proc.ProcessState != nil {
		result.ExitCode = proc.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return result, nil
		}
		return result, err
	}
	return result, nil
}
