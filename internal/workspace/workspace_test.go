package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkeller/pilot/internal/models"
)

func TestResolveLocalPath(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(t.TempDir(), nil)

	resolved, err := r.Resolve(context.Background(), models.SessionSpec{ID: "s", WorkspacePath: dir})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(resolved))
	assert.Equal(t, dir, resolved)
}

func TestResolveMissingLocalPath(t *testing.T) {
	r := NewResolver(t.TempDir(), nil)
	_, err := r.Resolve(context.Background(), models.SessionSpec{ID: "s", WorkspacePath: "/nonexistent/path"})
	require.Error(t, err)
}

func TestResolveLocalPathMustBeDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	r := NewResolver(t.TempDir(), nil)
	_, err := r.Resolve(context.Background(), models.SessionSpec{ID: "s", WorkspacePath: file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestResolveEmptySpecMeansNoWorkspace(t *testing.T) {
	r := NewResolver(t.TempDir(), nil)
	resolved, err := r.Resolve(context.Background(), models.SessionSpec{ID: "s"})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestRepoSlug(t *testing.T) {
	tests := []struct {
		repo string
		want string
	}{
		{"https://example.com/org/project.git", "project"},
		{"git@example.com:org/project.git", "project"},
		{"/local/path/repo", "repo"},
		{"weird name!.git", "weird-name-"},
		{"", "repo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, repoSlug(tt.repo), "repo %q", tt.repo)
	}
}

func TestCloneAndCleanup(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	// Build a local source repository to clone from.
	src := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = src
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init")
	require.NoError(t, os.WriteFile(filepath.Join(src, "README.md"), []byte("hi"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")

	base := t.TempDir()
	r := NewResolver(base, nil)

	resolved, err := r.Resolve(context.Background(), models.SessionSpec{ID: "s", Repository: src})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(resolved, "README.md"))

	require.NoError(t, r.Cleanup())
	assert.NoDirExists(t, resolved)
}

func TestCloneFailureSurfacesGitOutput(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	r := NewResolver(t.TempDir(), nil)
	_, err := r.Resolve(context.Background(), models.SessionSpec{ID: "s", Repository: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git clone")
}
