// Package workspace resolves the directory an IDE session opens: an existing
// local path, or a fresh clone of a declared repository.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jkeller/pilot/internal/models"
)

// Logger is the logging surface the resolver needs.
type Logger interface {
	LogDebug(message string)
	LogInfo(message string)
}

type noopLogger struct{}

func (noopLogger) LogDebug(string) {}
func (noopLogger) LogInfo(string)  {}

// Resolver materializes session workspaces. Cloned repositories land under
// baseDir and are removed by Cleanup.
type Resolver struct {
	baseDir string
	log     Logger

	mu     sync.Mutex
	cloned []string
}

// NewResolver creates a Resolver that clones repositories under baseDir.
func NewResolver(baseDir string, log Logger) *Resolver {
	if log == nil {
		log = noopLogger{}
	}
	return &Resolver{baseDir: baseDir, log: log}
}

// Resolve returns the workspace directory for a session spec. A declared
// local path must exist; a declared repository is cloned fresh. A spec with
// neither opens the IDE without a workspace.
func (r *Resolver) Resolve(ctx context.Context, spec models.SessionSpec) (string, error) {
	switch {
	case spec.WorkspacePath != "":
		abs, err := filepath.Abs(spec.WorkspacePath)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("workspace path %s: %w", abs, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("workspace path %s is not a directory", abs)
		}
		return abs, nil

	case spec.Repository != "":
		return r.clone(ctx, spec)

	default:
		return "", nil
	}
}

// clone performs a shallow git clone into a unique directory under baseDir.
func (r *Resolver) clone(ctx context.Context, spec models.SessionSpec) (string, error) {
	dest := filepath.Join(r.baseDir, fmt.Sprintf("%s-%s", repoSlug(spec.Repository), uuid.NewString()[:8]))
	if err := os.MkdirAll(r.baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace dir: %w", err)
	}

	r.log.LogInfo(fmt.Sprintf("cloning %s into %s", spec.Repository, dest))
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", spec.Repository, dest)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git clone %s failed: %w: %s",
			spec.Repository, err, strings.TrimSpace(string(output)))
	}

	r.mu.Lock()
	r.cloned = append(r.cloned, dest)
	r.mu.Unlock()

	abs, err := filepath.Abs(dest)
	if err != nil {
		return dest, nil
	}
	return abs, nil
}

// repoSlug derives a directory-name-safe slug from a repository URL.
func repoSlug(repo string) string {
	slug := strings.TrimSuffix(repo, ".git")
	if idx := strings.LastIndexAny(slug, "/:"); idx >= 0 {
		slug = slug[idx+1:]
	}
	slug = strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		default:
			return '-'
		}
	}, slug)
	if slug == "" {
		slug = "repo"
	}
	return slug
}

// Cleanup removes every directory this resolver cloned. Failures are
// reported but do not stop the remaining removals.
func (r *Resolver) Cleanup() error {
	r.mu.Lock()
	cloned := r.cloned
	r.cloned = nil
	r.mu.Unlock()

	var firstErr error
	for _, dir := range cloned {
		r.log.LogDebug(fmt.Sprintf("removing cloned workspace %s", dir))
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
