package health

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultProbeTimeout bounds one HTTP reachability probe
	DefaultProbeTimeout = 5 * time.Second
	// DefaultSyncMaxAge is how old the vault's last commit may be
	DefaultSyncMaxAge = 10 * time.Minute
)

// Check produces zero or more human-readable issues
type Check interface {
	Name() string
	Run(ctx context.Context) ([]string, error)
}

// StatusSource reports process name to status
type StatusSource interface {
	Status(ctx context.Context) (map[string]string, error)
}

// ProcessCheck flags every process that is not online
type ProcessCheck struct {
	source StatusSource
	skip   map[string]bool
}

// NewProcessCheck creates a process check. Names in skip are never flagged.
func NewProcessCheck(source StatusSource, skip []string) *ProcessCheck {
	s := make(map[string]bool, len(skip))
	for _, name := range skip {
		s[name] = true
	}
	return &ProcessCheck{source: source, skip: s}
}

func (c *ProcessCheck) Name() string { return "processes" }

func (c *ProcessCheck) Run(ctx context.Context) ([]string, error) {
	status, err := c.source.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read process status: %w", err)
	}
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []string
	for _, name := range names {
		if c.skip[name] || status[name] == "online" {
			continue
		}
		issues = append(issues, fmt.Sprintf("process %s is %s", name, status[name]))
	}
	return issues, nil
}

// HTTPProbe expects a 200 from url within the client timeout
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe. A nil client gets DefaultProbeTimeout.
func NewHTTPProbe(url string, client *http.Client) *HTTPProbe {
	if client == nil {
		client = &http.Client{Timeout: DefaultProbeTimeout}
	}
	return &HTTPProbe{url: url, client: client}
}

func (p *HTTPProbe) Name() string { return "http_probe" }

func (p *HTTPProbe) Run(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return []string{fmt.Sprintf("%s unreachable: %v", p.url, err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return []string{fmt.Sprintf("%s returned status %d", p.url, resp.StatusCode)}, nil
	}
	return nil, nil
}

// Runner runs a command and returns its stdout
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// SyncCheck flags a vault whose last git commit is older than maxAge
type SyncCheck struct {
	dir    string
	maxAge time.Duration
	run    Runner
	now    func() time.Time
}

// NewSyncCheck creates a sync staleness check for the repository at dir
func NewSyncCheck(dir string, maxAge time.Duration) *SyncCheck {
	return NewSyncCheckWithRunner(dir, maxAge, execRunner, time.Now)
}

// NewSyncCheckWithRunner creates a sync check with a custom runner and clock
func NewSyncCheckWithRunner(dir string, maxAge time.Duration, run Runner, now func() time.Time) *SyncCheck {
	if maxAge <= 0 {
		maxAge = DefaultSyncMaxAge
	}
	return &SyncCheck{dir: dir, maxAge: maxAge, run: run, now: now}
}

func (c *SyncCheck) Name() string { return "sync" }

func (c *SyncCheck) Run(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "git", "-C", c.dir, "log", "-1", "--format=%ct")
	if err != nil {
		return nil, fmt.Errorf("failed to read last commit: %w", err)
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return []string{"vault has no commits"}, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse commit time %q: %w", raw, err)
	}
	age := c.now().Sub(time.Unix(secs, 0))
	if age > c.maxAge {
		return []string{fmt.Sprintf("vault sync stale: last commit %s ago", age.Truncate(time.Second))}, nil
	}
	return nil, nil
}

var (
	_ Check = (*ProcessCheck)(nil)
	_ Check = (*HTTPProbe)(nil)
	_ Check = (*SyncCheck)(nil)
)
