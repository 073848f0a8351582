package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRepoURLShorthand(t *testing.T) {
	assert.Equal(t, "https://github.com/octocat/hello.git", resolveRepoURL("octocat/hello"))
}

func TestResolveRepoURLVerbatim(t *testing.T) {
	assert.Equal(t, "https://gitlab.com/foo/bar.git", resolveRepoURL("https://gitlab.com/foo/bar.git"))
	assert.Equal(t, "git@github.com:octocat/hello.git", resolveRepoURL("git@github.com:octocat/hello.git"))
}

func TestVerifyNonEmptyWorkspaceOnlyGitFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	err := verifyNonEmptyWorkspace(dir)
	assert.ErrorIs(t, err, ErrEmptyWorkspace)
}

func TestVerifyNonEmptyWorkspaceWithSourceFilePasses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	assert.NoError(t, verifyNonEmptyWorkspace(dir))
}

func TestWriteStaticNginxConf(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeStaticNginxConf(dir))

	content, err := os.ReadFile(filepath.Join(dir, "nginx.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "listen 8080;")
	assert.Contains(t, string(content), "try_files $uri $uri/ /index.html;")
}
