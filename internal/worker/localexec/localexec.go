// Package localexec runs allowlisted commands on the local machine.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotAllowed is returned for commands outside the allowlist.
var ErrNotAllowed = errors.New("command not allowed")

// defaultAllowed is the base allowlist: command → permitted first arguments.
var defaultAllowed = map[string][]string{
	"go":   {"build", "test", "vet"},
	"git":  {"diff", "status"},
	"make": {"build", "test"},
}

// Result holds the result of a command execution.
type Result struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// LocalExec runs commands in a fixed working directory.
type LocalExec struct {
	workDir string
	allowed map[string][]string
}

// New creates a LocalExec for workDir. extra adds entries to the default
// allowlist; it never removes any.
func New(workDir string, extra map[string][]string) *LocalExec {
	allowed := make(map[string][]string, len(defaultAllowed)+len(extra))
	for cmd, subs := range defaultAllowed {
		allowed[cmd] = append([]string(nil), subs...)
	}
	for cmd, subs := range extra {
		allowed[cmd] = append(allowed[cmd], subs...)
	}
	return &LocalExec{workDir: workDir, allowed: allowed}
}

// Name returns the executor identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed checks the command and its first argument against the allowlist.
func (l *LocalExec) IsAllowed(cmd string, args []string) bool {
	subs, ok := l.allowed[cmd]
	if !ok || len(args) == 0 {
		return false
	}
	for _, allowed := range subs {
		if args[0] == allowed {
			return true
		}
	}
	return false
}

// Execute runs cmd if it is allowed. A non-zero exit is reported in the
// result, not as an error.
func (l *LocalExec) Execute(ctx context.Context, cmd string, args []string) (*Result, error) {
	if !l.IsAllowed(cmd, args) {
		return nil, fmt.Errorf("%s %s: %w", cmd, strings.Join(args, " "), ErrNotAllowed)
	}

	execCmd := exec.CommandContext(ctx, cmd, args...)
	if l.workDir != "" {
		execCmd.Dir = l.workDir
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	exitCode := 0
	if err := execCmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("exec %s: %w", cmd, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		Command:  cmd,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
