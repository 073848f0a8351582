package detect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// errUnableToDetect is returned when neither an active workflow nor any
// recognized project file was found.
var errUnableToDetect = errors.New("detect: unable to detect project type, configure manually")

const githubAPIBase = "https://api.github.com"

// Client is the subset of the GitHub REST API the detector needs. It is
// an interface so the detection logic can be tested without a network
// call.
type Client interface {
	ListBranches(ctx context.Context, owner, repo string) ([]Branch, error)
	GetTree(ctx context.Context, owner, repo, sha string) (Tree, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

// Branch is a single GitHub branch reference.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Tree is a GitHub git tree listing.
type Tree struct {
	Entries []TreeEntry `json:"tree"`
}

// TreeEntry is one file or directory in a Tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// HTTPClient calls the real GitHub REST API over HTTPS using a personal
// access token. There is no ecosystem GitHub SDK in this agent's
// dependency set, so this talks to the three endpoints detection needs
// directly over net/http rather than pulling in a whole API client for
// three calls.
type HTTPClient struct {
	token string
	http  *http.Client
}

// NewHTTPClient constructs a GitHub API client authorized with a
// personal access token.
func NewHTTPClient(token string) *HTTPClient {
	return &HTTPClient{token: token, http: &http.Client{}}
}

func (c *HTTPClient) do(ctx context.Context, method, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "easycicd-agent")
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github api error (%d): %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// ListBranches lists a repository's branches.
func (c *HTTPClient) ListBranches(ctx context.Context, owner, repo string) ([]Branch, error) {
	var branches []Branch
	url := fmt.Sprintf("%s/repos/%s/%s/branches", githubAPIBase, owner, repo)
	if err := c.do(ctx, http.MethodGet, url, &branches); err != nil {
		return nil, err
	}
	return branches, nil
}

// GetTree fetches a git tree recursively for a commit SHA.
func (c *HTTPClient) GetTree(ctx context.Context, owner, repo, sha string) (Tree, error) {
	var tree Tree
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", githubAPIBase, owner, repo, sha)
	if err := c.do(ctx, http.MethodGet, url, &tree); err != nil {
		return Tree{}, err
	}
	return tree, nil
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetFileContent fetches and decodes a single file's content at a ref.
func (c *HTTPClient) GetFileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	var resp contentResponse
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", githubAPIBase, owner, repo, path, ref)
	if err := c.do(ctx, http.MethodGet, url, &resp); err != nil {
		return nil, err
	}
	if resp.Encoding != "base64" {
		return []byte(resp.Content), nil
	}
	return base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
}

// Detector drives the priority-ordered recipe detection: an active
// GitHub Actions workflow wins over every static file heuristic.
type Detector struct {
	client Client
}

// NewDetector constructs a Detector over a Client.
func NewDetector(client Client) *Detector {
	return &Detector{client: client}
}

// Detect infers a ProjectConfig for owner/repo at branch, restricted to
// files under pathFilter when non-empty. workflowPath overrides the
// default ".github/workflows/" prefix used to find workflow files.
func (d *Detector) Detect(ctx context.Context, owner, repo, branch, pathFilter, workflowPath string) (ProjectConfig, error) {
	branches, err := d.client.ListBranches(ctx, owner, repo)
	if err != nil {
		return ProjectConfig{}, fmt.Errorf("detect: failed to fetch branches: %w", err)
	}
	var sha string
	for _, b := range branches {
		if b.Name == branch {
			sha = b.Commit.SHA
			break
		}
	}
	if sha == "" {
		return ProjectConfig{}, fmt.Errorf("detect: branch %q not found", branch)
	}

	tree, err := d.client.GetTree(ctx, owner, repo, sha)
	if err != nil {
		return ProjectConfig{}, fmt.Errorf("detect: failed to fetch tree: %w", err)
	}

	workingDirectory := strings.TrimSuffix(pathFilter, "/")

	var files []string
	for _, entry := range tree.Entries {
		if pathFilter != "" && !strings.HasPrefix(entry.Path, pathFilter) {
			continue
		}
		files = append(files, entry.Path)
	}

	prefix := workflowPath
	if prefix == "" {
		prefix = ".github/workflows/"
	}
	var workflowFiles []string
	for _, f := range files {
		if strings.HasPrefix(f, prefix) && (strings.HasSuffix(f, ".yml") || strings.HasSuffix(f, ".yaml")) {
			workflowFiles = append(workflowFiles, f)
		}
	}

	if len(workflowFiles) > 0 {
		if config, err := d.detectFromWorkflows(ctx, owner, repo, branch, workflowFiles); err == nil {
			config.WorkingDirectory = workingDirectory
			return config, nil
		}
	}

	config, err := staticFallback(files)
	if err != nil {
		return ProjectConfig{}, err
	}
	config.WorkingDirectory = workingDirectory
	return config, nil
}

var workflowPriorityNames = []string{"build.yml", "deploy.yml", "ci.yml", "cd.yml", "main.yml"}

func (d *Detector) detectFromWorkflows(ctx context.Context, owner, repo, branch string, workflowFiles []string) (ProjectConfig, error) {
	sorted := append([]string(nil), workflowFiles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, oki := workflowPriority(sorted[i])
		pj, okj := workflowPriority(sorted[j])
		switch {
		case oki && okj:
			return pi < pj
		case oki:
			return true
		case okj:
			return false
		default:
			return sorted[i] < sorted[j]
		}
	})

	tried := 0
	for _, path := range sorted {
		if tried >= 5 {
			break
		}
		tried++

		content, err := d.client.GetFileContent(ctx, owner, repo, path, branch)
		if err != nil {
			continue
		}
		if !IsActiveForBranch(content, branch) {
			continue
		}
		info, err := ParseWorkflow(content)
		if err != nil {
			continue
		}
		config, err := BuildFromWorkflow(info)
		if err != nil {
			continue
		}
		return config, nil
	}
	return ProjectConfig{}, errors.New("detect: could not find active github actions workflow for this branch")
}

func workflowPriority(path string) (int, bool) {
	for i, name := range workflowPriorityNames {
		if strings.HasSuffix(path, name) {
			return i, true
		}
	}
	return 0, false
}
