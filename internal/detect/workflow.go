// Package detect infers a project's build/runtime recipe from the
// contents of its repository, the same way a human skimming the repo
// would: prefer an existing CI workflow if one is active for the target
// branch, and fall back to recognizing a handful of common project
// layouts (Dockerfile, package.json, build.gradle, pom.xml, Cargo.toml,
// go.mod, requirements.txt/pyproject.toml, a bare index.html).
package detect

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetupActionType identifies the language a workflow's setup-* action
// configures a toolchain for.
type SetupActionType string

const (
	SetupNode    SetupActionType = "node"
	SetupJava    SetupActionType = "java"
	SetupPython  SetupActionType = "python"
	SetupGo      SetupActionType = "go"
	SetupRust    SetupActionType = "rust"
	SetupUnknown SetupActionType = "unknown"
)

// SetupAction is one actions/setup-* step found in a workflow file.
type SetupAction struct {
	Type         SetupActionType
	Version      string
	Distribution string
	OtherParams  map[string]string
}

// WorkflowInfo is everything BuildFromWorkflow needs, extracted from a single
// GitHub Actions workflow YAML document.
type WorkflowInfo struct {
	SetupActions map[SetupActionType]SetupAction
	RunCommands  []string
	BuildCommands []string
	TestCommands  []string
}

type workflowYAML struct {
	On   interface{} `yaml:"on"`
	Jobs map[string]struct {
		Steps []struct {
			Uses string                 `yaml:"uses"`
			Run  string                 `yaml:"run"`
			With map[string]interface{} `yaml:"with"`
		} `yaml:"steps"`
	} `yaml:"jobs"`
}

// ParseWorkflow extracts setup actions and run/build/test commands from a
// workflow file's raw content. It only records what the workflow actually
// does; callers must not assume a convention the workflow doesn't state.
func ParseWorkflow(content []byte) (WorkflowInfo, error) {
	var doc workflowYAML
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return WorkflowInfo{}, fmt.Errorf("detect: failed to parse workflow yaml: %w", err)
	}

	info := WorkflowInfo{SetupActions: make(map[SetupActionType]SetupAction)}

	for _, job := range doc.Jobs {
		for _, step := range job.Steps {
			if step.Uses != "" {
				if t, ok := setupActionType(step.Uses); ok {
					info.SetupActions[t] = setupActionFromWith(t, step.With)
				}
			}
			if step.Run == "" {
				continue
			}
			info.RunCommands = append(info.RunCommands, step.Run)
			lower := strings.ToLower(step.Run)
			if containsAny(lower, "build", "gradle", "gradlew", "mvn", "npm run build", "cargo build") {
				info.BuildCommands = append(info.BuildCommands, step.Run)
			}
			if containsAny(lower, "test") {
				info.TestCommands = append(info.TestCommands, step.Run)
			}
		}
	}

	return info, nil
}

func setupActionType(uses string) (SetupActionType, bool) {
	switch {
	case strings.Contains(uses, "setup-node"):
		return SetupNode, true
	case strings.Contains(uses, "setup-java"):
		return SetupJava, true
	case strings.Contains(uses, "setup-python"):
		return SetupPython, true
	case strings.Contains(uses, "setup-go"):
		return SetupGo, true
	case strings.Contains(uses, "setup-rust") || strings.Contains(uses, "actions-rs"):
		return SetupRust, true
	default:
		return SetupUnknown, false
	}
}

func setupActionFromWith(t SetupActionType, with map[string]interface{}) SetupAction {
	action := SetupAction{Type: t, OtherParams: make(map[string]string)}
	for key, v := range with {
		s := fmt.Sprint(v)
		switch key {
		case "node-version", "java-version", "python-version", "go-version":
			action.Version = s
		case "distribution":
			action.Distribution = s
		default:
			action.OtherParams[key] = s
		}
	}
	return action
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// IsActiveForBranch reports whether a workflow's `on:` trigger would fire
// for a push to the given branch. An `on: push` with no `branches:` list
// is treated as active for every branch, matching GitHub's own default.
func IsActiveForBranch(content []byte, branch string) bool {
	var doc workflowYAML
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return false
	}

	switch on := doc.On.(type) {
	case string:
		return true
	case []interface{}:
		for _, item := range on {
			if s, ok := item.(string); ok {
				if s == "push" || s == "pull_request" || s == "workflow_dispatch" {
					return true
				}
			}
		}
		return false
	case map[string]interface{}:
		if _, ok := on["workflow_dispatch"]; ok {
			return true
		}
		for _, key := range []string{"push", "pull_request"} {
			trigger, ok := on[key]
			if !ok {
				continue
			}
			if triggerMatchesBranch(trigger, branch) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func triggerMatchesBranch(trigger interface{}, branch string) bool {
	m, ok := trigger.(map[string]interface{})
	if !ok {
		// e.g. `push: null` — no branch filter at all.
		return true
	}
	raw, ok := m["branches"]
	if !ok {
		return true
	}
	list, ok := raw.([]interface{})
	if !ok {
		return true
	}
	for _, item := range list {
		pattern, ok := item.(string)
		if !ok {
			continue
		}
		if pattern == "*" || pattern == "**" || pattern == branch {
			return true
		}
	}
	return false
}
