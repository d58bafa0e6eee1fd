package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugh/asset-shipper/internal/assets"
	"github.com/hugh/asset-shipper/internal/auth"
	"github.com/hugh/asset-shipper/pkg/crypto"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"Error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "shipper dev\n", out)
}

func TestInvalidLogFormat(t *testing.T) {
	_, err := execute(t, "--log-format", "xml", "version")
	assert.ErrorContains(t, err, "invalid --log-format")
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")

	out, err := execute(t, "token", "--tenant", "acme", "--role", "viewer", "--subject", "mapper")
	require.NoError(t, err)

	claims, err := auth.NewJWTService("cli-test-secret", time.Hour).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, auth.RoleViewer, claims.Role)
	assert.Equal(t, "mapper", claims.Subject)
}

func TestTokenCmd_Rejects(t *testing.T) {
	_, err := execute(t, "token", "--tenant", "acme", "--role", "root")
	assert.ErrorContains(t, err, "invalid --role")

	_, err = execute(t, "token", "--tenant", "Not A Tenant")
	assert.ErrorContains(t, err, "invalid --tenant")

	_, err = execute(t, "token")
	assert.Error(t, err)
}

func TestKeygenAndSeal(t *testing.T) {
	out, err := execute(t, "keygen")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "SECRETS_KEY="))
	key := strings.TrimPrefix(strings.SplitN(out, "\n", 2)[0], "SECRETS_KEY=")

	dir := t.TempDir()
	in := filepath.Join(dir, "secrets.env")
	bundle := filepath.Join(dir, "secrets.age")
	require.NoError(t, os.WriteFile(in, []byte("DATABASE_PASSWORD=hunter2\nJWT_SECRET=s3cret\n"), 0o600))

	out, err = execute(t, "seal", "--in", in, "--out", bundle, "--key", key)
	require.NoError(t, err)
	assert.Contains(t, out, "sealed 2 secrets")

	sealed, err := os.ReadFile(bundle)
	require.NoError(t, err)
	enc, err := crypto.NewEncryptor(key)
	require.NoError(t, err)
	secrets, err := enc.OpenBundle(sealed)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DATABASE_PASSWORD": "hunter2", "JWT_SECRET": "s3cret"}, secrets)
}

func TestSealCmd_RequiresKey(t *testing.T) {
	t.Setenv("SECRETS_KEY", "")
	_, err := execute(t, "seal", "--in", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "SECRETS_KEY")
}

func TestValidateScope(t *testing.T) {
	assert.NoError(t, validateScope("acme", map[string]string{}))

	err := validateScope("ACME", map[string]string{"prefix": "Prefix is required"})
	require.Error(t, err)
	assert.Equal(t, "invalid arguments: prefix: Prefix is required; tenant: Invalid tenant id", err.Error())
}

func TestReconcileCmd_ValidatesBeforeConnecting(t *testing.T) {
	_, err := execute(t, "reconcile", "--tenant", "acme", "--source", "aws", "--prefix", "../escape")
	assert.ErrorContains(t, err, "prefix: Invalid prefix")
}

func TestPrintShipResult(t *testing.T) {
	var buf bytes.Buffer
	printShipResult(&buf, &assets.ShipResult{
		AssetTypes:       []string{"ami", "ec2"},
		NewAssets:        3,
		NewPrimaryAssets: 1,
	}, 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "ami, ec2")
	assert.Contains(t, out, "Primary stubs created:")
	assert.Contains(t, out, "1.5s")
}
