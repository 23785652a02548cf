package staticroute

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "static-routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// S5
func TestLoadWildcardNaming(t *testing.T) {
	path := writeTempFile(t, `
static_routes:
  - domain: "*.static.example.com"
    target: "http://10.0.0.5:80"
    https: true
    redirect-https: true
`)
	res, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Intents, 1)

	ri := res.Intents[0]
	assert.Equal(t, "static-wildcard-static-example-com", ri.ServiceName)
	assert.Equal(t, "http://10.0.0.5:80", ri.BackendURL)
	assert.True(t, ri.HTTPSEnabled)
	assert.True(t, ri.RedirectHTTPS)
}

func TestServiceNameReplacementOrder(t *testing.T) {
	assert.Equal(t, "static-wildcard-static-example-com", ServiceName("*.static.example.com"))
}

func TestLoadMissingEntries(t *testing.T) {
	path := writeTempFile(t, `
static_routes:
  - domain: ""
    target: "http://10.0.0.5:80"
  - target: "http://10.0.0.6:80"
  - domain: "ok.example.com"
`)
	res, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, res.Errors, 3)
	assert.Empty(t, res.Intents)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	res, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, res.Intents)
	assert.Empty(t, res.Errors)
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempFile(t, `
static_routes:
  - domain: "svc.example.com"
    target: "http://10.0.0.1:8080"
`)
	res, err := Load(path)
	require.NoError(t, err)
	require.Len(t, res.Intents, 1)
	assert.True(t, res.Intents[0].HTTPSEnabled)
	assert.True(t, res.Intents[0].RedirectHTTPS)
}
