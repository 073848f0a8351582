package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goWorkflow = `
on:
  push:
    branches: [main]
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/setup-go@v5
        with:
          go-version: "1.22"
      - run: go build -o app .
      - run: go test ./...
`

func TestParseWorkflowExtractsSetupActionAndCommands(t *testing.T) {
	info, err := ParseWorkflow([]byte(goWorkflow))
	require.NoError(t, err)

	action, ok := info.SetupActions[SetupGo]
	require.True(t, ok)
	assert.Equal(t, "1.22", action.Version)

	assert.Equal(t, []string{"go build -o app ."}, info.BuildCommands)
	assert.Equal(t, []string{"go test ./..."}, info.TestCommands)
}

func TestIsActiveForBranchMatchesExplicitBranchList(t *testing.T) {
	assert.True(t, IsActiveForBranch([]byte(goWorkflow), "main"))
	assert.False(t, IsActiveForBranch([]byte(goWorkflow), "develop"))
}

func TestIsActiveForBranchDefaultsTrueWithNoBranchFilter(t *testing.T) {
	content := []byte("on: push\njobs: {}\n")
	assert.True(t, IsActiveForBranch(content, "anything"))
}

func TestIsActiveForBranchWorkflowDispatchAlwaysActive(t *testing.T) {
	content := []byte("on:\n  workflow_dispatch: {}\njobs: {}\n")
	assert.True(t, IsActiveForBranch(content, "feature/x"))
}

func TestIsActiveForBranchArrayTrigger(t *testing.T) {
	content := []byte("on: [push, pull_request]\njobs: {}\n")
	assert.True(t, IsActiveForBranch(content, "main"))
}
