package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_UsernamePassword(t *testing.T) {
	path := writeConfig(t, `
username: moderator
password: s3cret
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "moderator", cfg.Username)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.False(t, cfg.UsesIdP())
}

func TestLoad_IdP(t *testing.T) {
	path := writeConfig(t, `
idp_select_list_id: idp_select
idp_name: Example University
idp_submit_btn_name: Select
username_input_id: j_username
password_input_id: j_password
login_btn_name: _eventId_proceed
username: alice
password: pw
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.UsesIdP())
	assert.Equal(t, "Example University", cfg.IdPName)
	assert.Equal(t, "j_password", cfg.PasswordInputID)
	assert.Equal(t, "_eventId_proceed", cfg.LoginBtnName)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "username: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "password: only"))
	assert.ErrorContains(t, err, "username is required")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	_, err := LoadFromEnv()
	assert.ErrorIs(t, err, ErrNotConfigured)

	t.Setenv(ConfigEnv, writeConfig(t, "username: bob\n"))
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Username)
}
