package imagebuild

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/docker/docker-credential-helpers/credentials"
)

// dockerConfigJSON mirrors the shape of ~/.docker/config.json: the only
// part Kaniko and the daemon client both read (auths + optional
// insecure-registries-equivalent flags, which Kaniko takes as CLI args
// instead).
type dockerConfigJSON struct {
	Auths map[string]dockerConfigAuth `json:"auths"`
}

type dockerConfigAuth struct {
	Auth string `json:"auth"`
}

// registryHost extracts the registry host component from a full image
// reference, e.g. "registry.example.com/team/app:1.2.3" -> "registry.example.com".
func registryHost(ref string) string {
	slash := strings.Index(ref, "/")
	if slash == -1 {
		return "docker.io"
	}
	host := ref[:slash]
	if !strings.Contains(host, ".") && !strings.Contains(host, ":") && host != "localhost" {
		return "docker.io"
	}
	return host
}

// buildDockerConfigJSON synthesizes a config.json for the destination
// registry, basic-auth only.
func buildDockerConfigJSON(imageRef, username, password string) ([]byte, error) {
	host := registryHost(imageRef)
	auth := credentials.Credentials{ServerURL: host, Username: username, Secret: password}
	encoded := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Secret))

	cfg := dockerConfigJSON{Auths: map[string]dockerConfigAuth{host: {Auth: encoded}}}
	return json.Marshal(cfg)
}
