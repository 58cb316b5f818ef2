// Package generator runs the external code-generation CLI that writes new
// dashboard components.
package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/evodash/internal/apperr"
)

// PromptPlaceholder is replaced by the prompt in every argument.
const PromptPlaceholder = "{prompt}"

// ComponentsDirEnv tells the child process where components belong.
const ComponentsDirEnv = "EVODASH_COMPONENTS_DIR"

type Config struct {
	Command       string
	Args          []string
	Timeout       time.Duration
	ComponentsDir string
	// WorkDir is the child's working directory. Empty means the current one.
	WorkDir string
	// GracePeriod between SIGTERM and SIGKILL on timeout.
	GracePeriod time.Duration
}

// Result describes one generator run.
type Result struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Files    []string      `json:"generatedFiles,omitempty"`
	Output   string        `json:"-"`
	Duration time.Duration `json:"-"`
}

type Generator struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{cfg: cfg, logger: logger}
}

func (g *Generator) Command() string {
	return g.cfg.Command
}

func (g *Generator) Timeout() time.Duration {
	return g.cfg.Timeout
}

// Check reports whether the generator command can be resolved.
func (g *Generator) Check() error {
	if g.cfg.Command == "" {
		return errors.New("no generator command configured")
	}
	if _, err := exec.LookPath(g.cfg.Command); err != nil {
		return fmt.Errorf("generator command %q not found: %w", g.cfg.Command, err)
	}
	return nil
}

// Generate asks the generator to build the feature described by description.
// It blocks until the process exits or the timeout elapses. A failed run
// returns a Result with Success false and a GENERATOR error.
func (g *Generator) Generate(ctx context.Context, description string) (Result, error) {
	start := time.Now()
	prompt := BuildPrompt(description, g.cfg.ComponentsDir)

	before := snapshot(g.cfg.ComponentsDir)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	cmd := exec.Command(g.cfg.Command, buildArgs(g.cfg.Args, prompt)...)
	cmd.Dir = g.cfg.WorkDir
	cmd.Env = append(os.Environ(), ComponentsDirEnv+"="+g.cfg.ComponentsDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	g.logger.Info("generator started", "command", g.cfg.Command, "timeout", g.cfg.Timeout)

	if err := cmd.Start(); err != nil {
		return g.fail(start, "", fmt.Sprintf("starting generator: %v", err), err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		terminate(cmd, done, g.cfg.GracePeriod)
		out := stdout.String()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return g.fail(start, out, fmt.Sprintf("generator timed out after %s", g.cfg.Timeout), ctx.Err())
		}
		return g.fail(start, out, "generator cancelled", ctx.Err())
	case waitErr = <-done:
	}

	out := stdout.String()
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			msg := fmt.Sprintf("generator exited with status %d", exitErr.ExitCode())
			if tail := lastLine(stderr.String()); tail != "" {
				msg += ": " + tail
			}
			return g.fail(start, out, msg, waitErr)
		}
		return g.fail(start, out, fmt.Sprintf("generator failed: %v", waitErr), waitErr)
	}

	files, reported := []string(nil), false
	if r, ok := parseReport(out); ok {
		if !r.Success {
			msg := "generator reported failure"
			if r.Error != "" {
				msg += ": " + r.Error
			}
			return g.fail(start, out, msg, nil)
		}
		files, reported = r.Files, len(r.Files) > 0
	}
	if !reported {
		files = diffSnapshots(g.cfg.ComponentsDir, before, snapshot(g.cfg.ComponentsDir))
	}
	if files == nil {
		files = []string{}
	}

	res := Result{
		Success:  true,
		Message:  fmt.Sprintf("generated %d file(s)", len(files)),
		Files:    files,
		Output:   out,
		Duration: time.Since(start),
	}
	g.logger.Info("generator finished", "files", len(files), "duration", res.Duration)
	return res, nil
}

func (g *Generator) fail(start time.Time, output, msg string, cause error) (Result, error) {
	res := Result{Message: msg, Output: output, Duration: time.Since(start)}
	g.logger.Warn("generator failed", "message", msg, "duration", res.Duration)
	if cause == nil {
		return res, apperr.New(apperr.CodeGenerator, msg)
	}
	return res, apperr.Wrap(apperr.CodeGenerator, msg, cause)
}

// buildArgs substitutes the prompt into args. When no argument carries the
// placeholder the prompt is appended.
func buildArgs(args []string, prompt string) []string {
	out := make([]string, 0, len(args)+1)
	substituted := false
	for _, a := range args {
		if strings.Contains(a, PromptPlaceholder) {
			a = strings.ReplaceAll(a, PromptPlaceholder, prompt)
			substituted = true
		}
		out = append(out, a)
	}
	if !substituted {
		out = append(out, prompt)
	}
	return out
}

func terminate(cmd *exec.Cmd, done <-chan error, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	signalGroup(cmd, false)
	select {
	case <-done:
	case <-time.After(grace):
		signalGroup(cmd, true)
		<-done
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

type fileState struct {
	size    int64
	modTime time.Time
}

func snapshot(dir string) map[string]fileState {
	state := make(map[string]fileState)
	if dir == "" {
		return state
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return state
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		state[e.Name()] = fileState{size: info.Size(), modTime: info.ModTime()}
	}
	return state
}

// diffSnapshots returns files that are new or changed, sorted by name.
func diffSnapshots(dir string, before, after map[string]fileState) []string {
	var files []string
	for name, st := range after {
		if prev, ok := before[name]; ok && prev == st {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files
}
