package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/org"
	"github.com/fentz26/aiorg/internal/worker/localexec"
)

// Exec runs the agent's configured command in the project directory.
type Exec struct {
	spec org.WorkerSpec
}

// NewExec creates an exec worker for agent.
func NewExec(agent org.Agent) *Exec {
	return &Exec{spec: agent.Worker}
}

// Do runs the command. A non-zero exit fails the task with stderr as detail.
func (e *Exec) Do(ctx context.Context, task *models.Task, workDir string) (*models.Result, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	run := localexec.New(workDir, e.spec.Allow)
	res, err := run.Execute(ctx, e.spec.Command, e.spec.Args)
	if err != nil {
		return nil, err
	}

	result := &models.Result{Output: res.Stdout}
	if res.ExitCode != 0 {
		return result, fmt.Errorf("%s exited %d: %s", e.spec.Command, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	for _, out := range e.spec.Outputs {
		path := filepath.Join(workDir, out)
		if _, err := os.Stat(path); err == nil {
			result.Artifacts = append(result.Artifacts, path)
		}
	}
	return result, nil
}
