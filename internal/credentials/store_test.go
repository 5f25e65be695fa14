package credentials_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/rshade/cowtracker/internal/credentials"
)

func noEnv(string) (string, bool) { return "", false }

func TestStore_Keyring(t *testing.T) {
	keyring.MockInit()
	s := credentials.NewStore(t.TempDir(), noEnv)
	require.True(t, s.UsingKeyring())

	_, err := s.Token("https://herd.example.com/api")
	require.ErrorIs(t, err, credentials.ErrNotFound)

	require.NoError(t, s.SaveToken("https://herd.example.com/api/", "tok-1"))
	tok, err := s.Token("https://herd.example.com/api")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	require.NoError(t, s.DeleteToken("https://herd.example.com/api"))
	require.NoError(t, s.DeleteToken("https://herd.example.com/api"))
	_, err = s.Token("https://herd.example.com/api")
	require.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestStore_FileFallback(t *testing.T) {
	dir := t.TempDir()
	env := func(k string) (string, bool) {
		if k == credentials.EnvNoKeyring {
			return "1", true
		}
		return "", false
	}
	s := credentials.NewStore(dir, env)
	require.False(t, s.UsingKeyring())

	require.NoError(t, s.SaveToken("https://a.example.com", "tok-a"))
	require.NoError(t, s.SaveToken("https://b.example.com", "tok-b"))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second store over the same directory sees the tokens.
	other := credentials.NewStore(dir, env)
	tok, err := other.Token("https://b.example.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-b", tok)

	require.NoError(t, other.DeleteToken("https://a.example.com"))
	_, err = s.Token("https://a.example.com")
	require.ErrorIs(t, err, credentials.ErrNotFound)

	require.Error(t, s.SaveToken("https://a.example.com", ""))
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := credentials.NewStore(dir, func(k string) (string, bool) { return "1", k == credentials.EnvNoKeyring })
	require.NoError(t, os.WriteFile(s.Path(), []byte("{oops"), 0o600))

	_, err := s.Token("https://a.example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, credentials.ErrNotFound)
}
