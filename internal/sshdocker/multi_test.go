package sshdocker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snadboy/revp-provider/internal/hostconfig"
)

func testRegistry(t *testing.T) *hostconfig.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	const content = `
hosts:
  local-dock:
    is_local: true
  edge-1:
    hostname: edge-1.example.com
    user: deploy
    port: 22
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	reg, err := hostconfig.Load(path)
	require.NoError(t, err)
	return reg
}

func TestMultiClientIsLocal(t *testing.T) {
	reg := testRegistry(t)
	m := New(reg).(*multiClient)

	assert.True(t, m.isLocal("local-dock"))
	assert.False(t, m.isLocal("edge-1"))
	assert.False(t, m.isLocal("unknown-alias"))
}

func TestMultiClientRemoteHostCaching(t *testing.T) {
	reg := testRegistry(t)
	m := New(reg).(*multiClient)

	h1, err := m.remoteHost("edge-1")
	require.NoError(t, err)
	h2, err := m.remoteHost("edge-1")
	require.NoError(t, err)
	assert.Same(t, h1, h2, "remoteHost should cache per alias")
}

func TestMultiClientRemoteHostUnknownAlias(t *testing.T) {
	reg := testRegistry(t)
	m := New(reg).(*multiClient)

	_, err := m.remoteHost("ghost")
	assert.Error(t, err)
}

