package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromWorkflowNoSetupAction(t *testing.T) {
	_, err := BuildFromWorkflow(WorkflowInfo{})
	assert.ErrorIs(t, err, ErrNoSetupAction)
}

func TestBuildGoConfigAppendsOutputCopyWhenMissing(t *testing.T) {
	info := WorkflowInfo{
		SetupActions:  map[SetupActionType]SetupAction{SetupGo: {Type: SetupGo, Version: "1.22"}},
		BuildCommands: []string{"go build -o app ."},
	}
	config, err := BuildFromWorkflow(info)
	require.NoError(t, err)
	assert.Equal(t, "Go", config.ProjectType)
	assert.Equal(t, "golang:1.22", config.BuildImage)
	assert.Equal(t, "go build -o app . && cp app /output/", config.BuildCommand)
}

func TestBuildGoConfigDoesNotDoubleAppendOutputCopy(t *testing.T) {
	info := WorkflowInfo{
		SetupActions:  map[SetupActionType]SetupAction{SetupGo: {Type: SetupGo}},
		BuildCommands: []string{"go build -o /output/app ."},
	}
	config, err := BuildFromWorkflow(info)
	require.NoError(t, err)
	assert.Equal(t, "go build -o /output/app .", config.BuildCommand)
}

func TestBuildJavaConfigRequiresDistribution(t *testing.T) {
	info := WorkflowInfo{
		SetupActions:  map[SetupActionType]SetupAction{SetupJava: {Type: SetupJava, Version: "17"}},
		BuildCommands: []string{"./gradlew build"},
	}
	_, err := BuildFromWorkflow(info)
	assert.Error(t, err)
}

func TestBuildJavaConfigGradleWithTemurin(t *testing.T) {
	info := WorkflowInfo{
		SetupActions:  map[SetupActionType]SetupAction{SetupJava: {Type: SetupJava, Version: "21", Distribution: "temurin"}},
		BuildCommands: []string{"./gradlew build"},
	}
	config, err := BuildFromWorkflow(info)
	require.NoError(t, err)
	assert.Equal(t, "gradle", config.CacheType)
	assert.Equal(t, "eclipse-temurin:21-jre", config.RuntimeImage)
}

func TestBuildNodeConfigBackendUsesDiscoveredRunCommand(t *testing.T) {
	info := WorkflowInfo{
		SetupActions:  map[SetupActionType]SetupAction{SetupNode: {Type: SetupNode, Version: "20"}},
		BuildCommands: []string{"npm ci", "npm run build"},
		RunCommands:   []string{"node dist/index.js"},
	}
	config, err := BuildFromWorkflow(info)
	require.NoError(t, err)
	assert.Equal(t, "Node.js (Server)", config.ProjectType)
	assert.Equal(t, "node dist/index.js", config.RuntimeCommand)
}

func TestBuildRustConfigAppendsBinaryCopy(t *testing.T) {
	info := WorkflowInfo{
		SetupActions:  map[SetupActionType]SetupAction{SetupRust: {Type: SetupRust}},
		BuildCommands: []string{"cargo build --release"},
	}
	config, err := BuildFromWorkflow(info)
	require.NoError(t, err)
	assert.Contains(t, config.BuildCommand, "find target/release")
}
