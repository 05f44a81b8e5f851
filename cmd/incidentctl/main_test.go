package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/store-incident-api/internal/models"
)

func TestLegacyTransformStreams(t *testing.T) {
	root := newRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetIn(strings.NewReader(`[{"store": {"number": "7"}, "id": 1}]`))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"legacy", "transform"})

	require.NoError(t, root.Execute())
	assert.JSONEq(t, `[{"store": {"numbers": ["7"]}, "createdBy": null, "updatedBy": null}]`, stdout.String())
	assert.Contains(t, stderr.String(), "transformed 1 reports")
}

func TestLegacyTransformFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "legacy.json")
	out := filepath.Join(dir, "current.json")
	require.NoError(t, os.WriteFile(in, []byte(`[{"version": "1"}, {"version": "2"}]`), 0o600))

	root := newRootCommand()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"legacy", "transform", "--in", in, "--out", out})
	require.NoError(t, root.Execute())

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "version")

	root = newRootCommand()
	root.SetArgs([]string{"legacy", "transform", "--in", filepath.Join(dir, "missing.json"), "--out", out})
	assert.Error(t, root.Execute())
}

func TestNewUser(t *testing.T) {
	user, err := newUser(" robert.tam ", "s3cret", "Robert Tam", "admin")
	require.NoError(t, err)
	assert.Equal(t, "robert.tam", user.Username)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.True(t, user.IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")))

	_, err = newUser("a-very-long-username-x", "pw", "", "USER")
	assert.Error(t, err)
	_, err = newUser("robert", "", "", "USER")
	assert.Error(t, err)
	_, err = newUser("robert", "pw", "", "OWNER")
	assert.Error(t, err)
}
