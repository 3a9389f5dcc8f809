package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "webdir/internal/jwt_token"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("WEBDIR_DATABASE_URL", "")
	t.Setenv("WEBDIR_REDIS_URL", "")
	t.Setenv("WEBDIR_KAFKA_BROKERS", "")
	t.Setenv("WEBDIR_JWT_SIGNING_KEY", "test-key")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigratePrintsSchema(t *testing.T) {
	out, err := execute(t, "", "migrate", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS memberships")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	_, err := execute(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBDIR_DATABASE_URL")
}

func TestSeedFromStdin(t *testing.T) {
	seed := `
categories:
  - name: Computers
    slug: computers
    children:
      - name: Programming
        slug: programming
`
	out, err := execute(t, seed, "seed")
	require.NoError(t, err)
	assert.Equal(t, "created 2 categories\n", out)
}

func TestRecalcAllOnEmptyDirectory(t *testing.T) {
	out, err := execute(t, "", "recalc")
	require.NoError(t, err)
	assert.Contains(t, out, `"categories": 0`)
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute(t, "", "health", "not-a-uuid")
	assert.Error(t, err)

	_, err = execute(t, "", "karma", uuid.NewString(), "--moderator", "maybe")
	assert.Error(t, err)
}

func TestTokenValidatesWithConfiguredKey(t *testing.T) {
	user := uuid.NewString()
	out, err := execute(t, "", "token", user)
	require.NoError(t, err)

	claims, err := jwttoken.NewJWTService("test-key", "").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, user, claims.UserID)
}
