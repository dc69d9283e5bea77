package imagebuild

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryHostQualified(t *testing.T) {
	assert.Equal(t, "registry.example.com", registryHost("registry.example.com/team/app:1.2.3"))
}

func TestRegistryHostPortQualified(t *testing.T) {
	assert.Equal(t, "localhost:5000", registryHost("localhost:5000/app:latest"))
}

func TestRegistryHostUnqualifiedDefaultsToDockerHub(t *testing.T) {
	assert.Equal(t, "docker.io", registryHost("redis:7"))
	assert.Equal(t, "docker.io", registryHost("library/redis:7"))
}

func TestBuildDockerConfigJSONEncodesBasicAuth(t *testing.T) {
	raw, err := buildDockerConfigJSON("registry.example.com/team/app:1.2.3", "alice", "hunter2")
	require.NoError(t, err)

	var cfg dockerConfigJSON
	require.NoError(t, json.Unmarshal(raw, &cfg))
	auth, ok := cfg.Auths["registry.example.com"]
	require.True(t, ok)
	assert.NotEmpty(t, auth.Auth)
}
