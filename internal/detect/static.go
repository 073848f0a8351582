package detect

import "strings"

// staticFallback detects a project's recipe from its file listing alone,
// used when no active GitHub Actions workflow can be parsed. Order
// matters: it mirrors the priority a maintainer would check a repo in.
func staticFallback(files []string) (ProjectConfig, error) {
	switch {
	case anyEndsWith(files, "Dockerfile", "dockerfile"):
		return dockerfileConfig(), nil
	case anyEndsWith(files, "package.json"):
		return nodeStaticConfig(files), nil
	case anyEndsWith(files, "build.gradle", "build.gradle.kts"):
		return gradleStaticConfig(), nil
	case anyEndsWith(files, "pom.xml"):
		return mavenStaticConfig(), nil
	case anyEndsWith(files, "Cargo.toml"):
		return rustStaticConfig(), nil
	case anyEndsWith(files, "go.mod"):
		return goStaticConfig(), nil
	case anyEndsWith(files, "requirements.txt", "pyproject.toml"):
		return pythonStaticConfig(files), nil
	case containsExact(files, "index.html"):
		return staticSiteConfig(), nil
	default:
		return ProjectConfig{}, errUnableToDetect
	}
}

func anyEndsWith(files []string, suffixes ...string) bool {
	for _, f := range files {
		for _, suffix := range suffixes {
			if strings.HasSuffix(f, suffix) {
				return true
			}
		}
	}
	return false
}

func containsExact(files []string, name string) bool {
	for _, f := range files {
		if f == name {
			return true
		}
	}
	return false
}

func dockerfileConfig() ProjectConfig {
	return ProjectConfig{
		ProjectType:    "Dockerfile",
		BuildImage:     "docker:24-cli",
		BuildCommand:   "docker build -t app .",
		CacheType:      "none",
		RuntimeImage:   "app",
		RuntimeCommand: "",
		HealthCheckURL: "/",
	}
}

func nodeStaticConfig(files []string) ProjectConfig {
	hasPublic := anyContainsPath(files, "/public/")
	hasIndexHTML := anyEndsWith(files, "index.html")

	if hasIndexHTML || hasPublic {
		return ProjectConfig{
			ProjectType:    "Node.js (Frontend)",
			BuildImage:     "node:20",
			BuildCommand:   "npm install && npm run build && cp -r dist/* /output/ 2>/dev/null || cp -r build/* /output/ 2>/dev/null || echo 'Build output copied'",
			CacheType:      "npm",
			RuntimeImage:   "nginx:alpine",
			RuntimeCommand: "nginx -c /app/nginx.conf",
			HealthCheckURL: "/",
		}
	}
	return ProjectConfig{
		ProjectType:    "Node.js (Backend)",
		BuildImage:     "node:20",
		BuildCommand:   "npm install && npm run build && cp -r dist/* /output/ && cp package*.json /output/",
		CacheType:      "npm",
		RuntimeImage:   "node:20-slim",
		RuntimeCommand: "node dist/index.js",
		HealthCheckURL: "/health",
	}
}

func anyContainsPath(files []string, fragment string) bool {
	for _, f := range files {
		if strings.Contains(f, fragment) {
			return true
		}
	}
	return false
}

func gradleStaticConfig() ProjectConfig {
	return ProjectConfig{
		ProjectType:    "Gradle (Spring Boot)",
		BuildImage:     "gradle:8-jdk17",
		BuildCommand:   `gradle clean build && find build/libs -name '*.jar' ! -name '*-plain.jar' -exec cp {} /output/app.jar \;`,
		CacheType:      "gradle",
		RuntimeImage:   "eclipse-temurin:17-jre",
		RuntimeCommand: "java -jar app.jar",
		HealthCheckURL: "/actuator/health",
	}
}

func mavenStaticConfig() ProjectConfig {
	return ProjectConfig{
		ProjectType:    "Maven (Spring Boot)",
		BuildImage:     "maven:3.9-eclipse-temurin-17",
		BuildCommand:   "mvn clean package -DskipTests && cp target/*.jar /output/app.jar",
		CacheType:      "maven",
		RuntimeImage:   "eclipse-temurin:17-jre",
		RuntimeCommand: "java -jar app.jar",
		HealthCheckURL: "/actuator/health",
	}
}

func rustStaticConfig() ProjectConfig {
	return ProjectConfig{
		ProjectType:    "Rust",
		BuildImage:     "rust:1.75",
		BuildCommand:   `cargo build --release && find target/release -maxdepth 1 -type f -executable -exec cp {} /output/ \;`,
		CacheType:      "cargo",
		RuntimeImage:   "debian:bookworm-slim",
		RuntimeCommand: "./app",
		HealthCheckURL: "/health",
	}
}

func goStaticConfig() ProjectConfig {
	return ProjectConfig{
		ProjectType:    "Go",
		BuildImage:     "golang:1.21",
		BuildCommand:   "go build -o app . && cp app /output/",
		CacheType:      "go",
		RuntimeImage:   "debian:bookworm-slim",
		RuntimeCommand: "./app",
		HealthCheckURL: "/health",
	}
}

func pythonStaticConfig(files []string) ProjectConfig {
	hasFlask := anyContainsPath(files, "flask")
	hasDjango := anyContainsPath(files, "django")
	hasFastAPI := anyContainsPath(files, "fastapi")

	runtimeCommand := "python main.py"
	switch {
	case hasDjango:
		runtimeCommand = "python manage.py runserver 0.0.0.0:8000"
	case hasFastAPI:
		runtimeCommand = "uvicorn main:app --host 0.0.0.0 --port 8000"
	case hasFlask:
		runtimeCommand = "python app.py"
	}

	return ProjectConfig{
		ProjectType:    "Python",
		BuildImage:     "python:3.11",
		BuildCommand:   "pip install -r requirements.txt && cp -r . /output/",
		CacheType:      "pip",
		RuntimeImage:   "python:3.11-slim",
		RuntimeCommand: runtimeCommand,
		HealthCheckURL: "/health",
	}
}

func staticSiteConfig() ProjectConfig {
	return ProjectConfig{
		ProjectType:    "Static Site (pre-built)",
		BuildImage:     "alpine:latest",
		BuildCommand:   "cp -r . /output/",
		CacheType:      "none",
		RuntimeImage:   "nginx:alpine",
		RuntimeCommand: "nginx -c /app/nginx.conf",
		HealthCheckURL: "/",
	}
}
