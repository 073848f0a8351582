package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticFallbackDockerfileWinsOverEverythingElse(t *testing.T) {
	config, err := staticFallback([]string{"Dockerfile", "package.json", "go.mod"})
	require.NoError(t, err)
	assert.Equal(t, "Dockerfile", config.ProjectType)
}

func TestStaticFallbackNodeFrontendVsBackend(t *testing.T) {
	frontend, err := staticFallback([]string{"package.json", "public/index.html"})
	require.NoError(t, err)
	assert.Equal(t, "Node.js (Frontend)", frontend.ProjectType)

	backend, err := staticFallback([]string{"package.json", "src/index.js"})
	require.NoError(t, err)
	assert.Equal(t, "Node.js (Backend)", backend.ProjectType)
}

func TestStaticFallbackPythonFrameworkDetection(t *testing.T) {
	config, err := staticFallback([]string{"requirements.txt", "myapp/django_settings.py"})
	require.NoError(t, err)
	assert.Contains(t, config.RuntimeCommand, "manage.py")
}

func TestStaticFallbackUnrecognizedReturnsError(t *testing.T) {
	_, err := staticFallback([]string{"README.md"})
	assert.ErrorIs(t, err, errUnableToDetect)
}
