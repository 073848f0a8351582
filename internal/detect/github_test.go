package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	branches []Branch
	tree     Tree
	files    map[string][]byte
}

func (f *fakeClient) ListBranches(ctx context.Context, owner, repo string) ([]Branch, error) {
	return f.branches, nil
}

func (f *fakeClient) GetTree(ctx context.Context, owner, repo, sha string) (Tree, error) {
	return f.tree, nil
}

func (f *fakeClient) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	content, ok := f.files[path]
	if !ok {
		return nil, assert.AnError
	}
	return content, nil
}

func TestDetectPrefersActiveWorkflowOverStaticFiles(t *testing.T) {
	client := &fakeClient{
		branches: []Branch{{Name: "main", Commit: struct {
			SHA string `json:"sha"`
		}{SHA: "abc123"}}},
		tree: Tree{Entries: []TreeEntry{
			{Path: ".github/workflows/build.yml"},
			{Path: "go.mod"},
		}},
		files: map[string][]byte{
			".github/workflows/build.yml": []byte(goWorkflow),
		},
	}

	d := NewDetector(client)
	config, err := d.Detect(context.Background(), "octocat", "hello", "main", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Go", config.ProjectType)
	assert.Equal(t, "golang:1.22", config.BuildImage)
}

func TestDetectFallsBackToStaticFilesWhenNoWorkflowMatches(t *testing.T) {
	client := &fakeClient{
		branches: []Branch{{Name: "main", Commit: struct {
			SHA string `json:"sha"`
		}{SHA: "abc123"}}},
		tree: Tree{Entries: []TreeEntry{
			{Path: "go.mod"},
			{Path: "main.go"},
		}},
	}

	d := NewDetector(client)
	config, err := d.Detect(context.Background(), "octocat", "hello", "main", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Go", config.ProjectType)
}

func TestDetectAppliesWorkingDirectoryFromPathFilter(t *testing.T) {
	client := &fakeClient{
		branches: []Branch{{Name: "main", Commit: struct {
			SHA string `json:"sha"`
		}{SHA: "abc123"}}},
		tree: Tree{Entries: []TreeEntry{
			{Path: "backend/go.mod"},
		}},
	}

	d := NewDetector(client)
	config, err := d.Detect(context.Background(), "octocat", "hello", "main", "backend/", "")
	require.NoError(t, err)
	assert.Equal(t, "backend", config.WorkingDirectory)
}

func TestDetectReturnsErrorWhenBranchMissing(t *testing.T) {
	client := &fakeClient{branches: []Branch{{Name: "main"}}}
	d := NewDetector(client)
	_, err := d.Detect(context.Background(), "octocat", "hello", "develop", "", "")
	assert.Error(t, err)
}

func TestDetectReturnsErrorWhenNothingRecognized(t *testing.T) {
	client := &fakeClient{
		branches: []Branch{{Name: "main", Commit: struct {
			SHA string `json:"sha"`
		}{SHA: "abc123"}}},
		tree: Tree{Entries: []TreeEntry{{Path: "README.md"}}},
	}
	d := NewDetector(client)
	_, err := d.Detect(context.Background(), "octocat", "hello", "main", "", "")
	assert.ErrorIs(t, err, errUnableToDetect)
}
