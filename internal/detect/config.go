package detect

import (
	"errors"
	"fmt"
	"strings"
)

// ProjectConfig is the build/runtime recipe a detector produces. It maps
// directly onto the fields a Project needs at creation time.
type ProjectConfig struct {
	ProjectType      string
	BuildImage       string
	BuildCommand     string
	CacheType        string
	RuntimeImage     string
	RuntimeCommand   string
	HealthCheckURL   string
	WorkingDirectory string
}

// ErrNoSetupAction is returned when a workflow has no recognized
// actions/setup-* step to key a language off of.
var ErrNoSetupAction = errors.New("detect: no setup action found in workflow")

// ErrUnsupportedLanguage is returned for a setup action whose language
// has no config builder (e.g. setup-ruby).
var ErrUnsupportedLanguage = errors.New("detect: unsupported language setup action")

// BuildFromWorkflow turns parsed workflow information into a
// ProjectConfig. The setup action selects the language builder, which
// reuses the workflow's build commands but also adds commands of its own:
// steps that copy the artifact into /output, default build commands for
// some languages, and a fixed runtime command.
func BuildFromWorkflow(info WorkflowInfo) (ProjectConfig, error) {
	if len(info.SetupActions) == 0 {
		return ProjectConfig{}, ErrNoSetupAction
	}

	// Prefer, in order, the languages this detector knows how to build a
	// recipe for; map iteration order is unspecified so this keeps output
	// deterministic across runs of the same workflow.
	for _, t := range []SetupActionType{SetupJava, SetupNode, SetupPython, SetupGo, SetupRust} {
		action, ok := info.SetupActions[t]
		if !ok {
			continue
		}
		switch t {
		case SetupJava:
			return buildJavaConfig(info, action)
		case SetupNode:
			return buildNodeConfig(info, action)
		case SetupPython:
			return buildPythonConfig(info, action)
		case SetupGo:
			return buildGoConfig(info, action)
		case SetupRust:
			return buildRustConfig(info, action)
		}
	}
	return ProjectConfig{}, ErrUnsupportedLanguage
}

func buildJavaConfig(info WorkflowInfo, setup SetupAction) (ProjectConfig, error) {
	version := orDefault(setup.Version, "17")

	isGradle := anyContains(info.BuildCommands, "gradle", "gradlew")
	isMaven := anyContains(info.BuildCommands, "mvn")
	if !isGradle && !isMaven {
		return ProjectConfig{}, errors.New("detect: no gradle or maven build command found in workflow")
	}
	if len(info.BuildCommands) == 0 {
		return ProjectConfig{}, errors.New("detect: no build commands found in workflow")
	}

	buildImage := fmt.Sprintf("maven:3.9-eclipse-temurin-%s", version)
	if isGradle {
		buildImage = fmt.Sprintf("gradle:8-jdk%s", version)
	}

	cmds := strings.Join(info.BuildCommands, " && ")
	buildCommand := cmds
	if !strings.Contains(cmds, "/output") {
		if isGradle {
			buildCommand = fmt.Sprintf("%s && find build/libs -name '*.jar' ! -name '*-plain.jar' -exec cp {} /output/app.jar \\;", cmds)
		} else {
			buildCommand = fmt.Sprintf("%s && cp target/*.jar /output/app.jar", cmds)
		}
	}

	var runtimeImage string
	switch setup.Distribution {
	case "temurin", "adopt", "adoptium":
		runtimeImage = fmt.Sprintf("eclipse-temurin:%s-jre", version)
	case "corretto":
		runtimeImage = fmt.Sprintf("amazoncorretto:%s", version)
	case "zulu":
		runtimeImage = fmt.Sprintf("azul/zulu-openjdk:%s-jre", version)
	case "":
		return ProjectConfig{}, errors.New("detect: java distribution not specified in workflow")
	default:
		return ProjectConfig{}, fmt.Errorf("detect: unknown java distribution: %s", setup.Distribution)
	}

	projectType := "Java (Maven)"
	cacheType := "maven"
	if isGradle {
		projectType, cacheType = "Java (Gradle)", "gradle"
	}

	return ProjectConfig{
		ProjectType:    projectType,
		BuildImage:     buildImage,
		BuildCommand:   buildCommand,
		CacheType:      cacheType,
		RuntimeImage:   runtimeImage,
		RuntimeCommand: "java -jar app.jar",
		HealthCheckURL: "/actuator/health",
	}, nil
}

func buildNodeConfig(info WorkflowInfo, setup SetupAction) (ProjectConfig, error) {
	version := orDefault(setup.Version, "20")
	if len(info.BuildCommands) == 0 {
		return ProjectConfig{}, errors.New("detect: no build commands found in workflow")
	}

	isBackend := anyContains(info.RunCommands, "node ", "npm start", "npm run start", "npm run dev")
	isStatic := !isBackend && anyContains(info.RunCommands, "vite build", "webpack", "gh-pages")

	var buildCommand string
	if isBackend {
		buildCommand = "npm ci && cp -r src package*.json /output/"
	} else {
		cmds := strings.Join(info.BuildCommands, " && ")
		if strings.Contains(cmds, "/output") {
			buildCommand = cmds
		} else {
			buildCommand = fmt.Sprintf("%s && cp -r dist/* /output/ 2>/dev/null || cp -r build/* /output/", cmds)
		}
	}

	runtimeCommand := "node dist/index.js"
	if isStatic {
		runtimeCommand = "nginx -c /app/nginx.conf"
	} else if cmd, ok := findNodeRunCommand(info.RunCommands); ok {
		runtimeCommand = cmd
	}

	projectType := "Node.js (Server)"
	runtimeImage := fmt.Sprintf("node:%s-slim", version)
	if isStatic {
		projectType = "Node.js (Static)"
		runtimeImage = "nginx:alpine"
	}

	return ProjectConfig{
		ProjectType:    projectType,
		BuildImage:     fmt.Sprintf("node:%s", version),
		BuildCommand:   buildCommand,
		CacheType:      "npm",
		RuntimeImage:   runtimeImage,
		RuntimeCommand: runtimeCommand,
		HealthCheckURL: "/",
	}, nil
}

func findNodeRunCommand(runCommands []string) (string, bool) {
	for _, cmd := range runCommands {
		for _, line := range strings.Split(cmd, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || !strings.HasPrefix(line, "node ") {
				continue
			}
			fields := strings.Fields(line)
			var kept []string
			for _, f := range fields {
				if strings.HasPrefix(f, "#") || f == "&" || f == ";" {
					break
				}
				kept = append(kept, f)
			}
			return strings.Join(kept, " "), true
		}
	}
	return "", false
}

func buildPythonConfig(info WorkflowInfo, setup SetupAction) (ProjectConfig, error) {
	version := orDefault(setup.Version, "3.11")
	if len(info.BuildCommands) == 0 && len(info.RunCommands) == 0 {
		return ProjectConfig{}, errors.New("detect: no commands found in workflow")
	}

	buildCommand := "pip install -r requirements.txt && cp -r . /output/"
	if len(info.BuildCommands) > 0 {
		buildCommand = strings.Join(info.BuildCommands, " && ")
	}

	return ProjectConfig{
		ProjectType:    "Python",
		BuildImage:     fmt.Sprintf("python:%s", version),
		BuildCommand:   buildCommand,
		CacheType:      "pip",
		RuntimeImage:   fmt.Sprintf("python:%s-slim", version),
		RuntimeCommand: "python main.py",
		HealthCheckURL: "/health",
	}, nil
}

func buildGoConfig(info WorkflowInfo, setup SetupAction) (ProjectConfig, error) {
	version := orDefault(setup.Version, "1.21")
	if len(info.BuildCommands) == 0 {
		return ProjectConfig{}, errors.New("detect: no build commands found in workflow")
	}

	cmds := strings.Join(info.BuildCommands, " && ")
	buildCommand := cmds
	if !strings.Contains(cmds, "/output") {
		buildCommand = fmt.Sprintf("%s && cp app /output/", cmds)
	}

	return ProjectConfig{
		ProjectType:    "Go",
		BuildImage:     fmt.Sprintf("golang:%s", version),
		BuildCommand:   buildCommand,
		CacheType:      "go",
		RuntimeImage:   "debian:bookworm-slim",
		RuntimeCommand: "./app",
		HealthCheckURL: "/health",
	}, nil
}

func buildRustConfig(info WorkflowInfo, _ SetupAction) (ProjectConfig, error) {
	if len(info.BuildCommands) == 0 {
		return ProjectConfig{}, errors.New("detect: no build commands found in workflow")
	}

	cmds := strings.Join(info.BuildCommands, " && ")
	buildCommand := cmds
	if !strings.Contains(cmds, "/output") {
		buildCommand = fmt.Sprintf("%s && find target/release -maxdepth 1 -type f -executable -exec cp {} /output/ \\;", cmds)
	}

	return ProjectConfig{
		ProjectType:    "Rust",
		BuildImage:     "rust:1.75",
		BuildCommand:   buildCommand,
		CacheType:      "cargo",
		RuntimeImage:   "debian:bookworm-slim",
		RuntimeCommand: "./app",
		HealthCheckURL: "/health",
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func anyContains(commands []string, substrs ...string) bool {
	for _, cmd := range commands {
		for _, s := range substrs {
			if strings.Contains(cmd, s) {
				return true
			}
		}
	}
	return false
}
