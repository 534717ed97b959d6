package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

const (
	pm2StatusTimeout  = 15 * time.Second
	pm2RestartTimeout = 30 * time.Second
)

// Runner runs a command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command and returns its stdout
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// pm2Process is the subset of a `pm2 jlist` entry we read
type pm2Process struct {
	Name   string `json:"name"`
	PM2Env struct {
		Status string `json:"status"`
	} `json:"pm2_env"`
}

// PM2 talks to the PM2 process manager through its CLI
type PM2 struct {
	bin string
	run Runner
}

// NewPM2WithRunner creates a PM2 client with a custom runner
func NewPM2WithRunner(bin string, run Runner) *PM2 {
	if bin == "" {
		bin = "pm2"
	}
	return &PM2{bin: bin, run: run}
}

// Status returns process name to PM2 status
func (p *PM2) Status(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, pm2StatusTimeout)
	defer cancel()

	out, err := p.run(ctx, p.bin, "jlist")
	if err != nil {
		return nil, fmt.Errorf("pm2 jlist failed: %w", err)
	}
	var procs []pm2Process
	if err := json.Unmarshal(out, &procs); err != nil {
		return nil, fmt.Errorf("failed to parse pm2 jlist: %w", err)
	}
	status := make(map[string]string, len(procs))
	for _, proc := range procs {
		status[proc.Name] = proc.PM2Env.Status
	}
	return status, nil
}

// Restart restarts a process by name
func (p *PM2) Restart(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, pm2RestartTimeout)
	defer cancel()

	if _, err := p.run(ctx, p.bin, "restart", name); err != nil {
		return fmt.Errorf("pm2 restart %s failed: %w", name, err)
	}
	return nil
}

var _ ProcessManager = (*PM2)(nil)
