package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRenamesKeysAndFiltersLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer
	logger := Setup("marketplaced", "test", Options{Level: "warn", Output: &buf})

	logger.Info("hidden")
	logger.Warn("listing rejected", "op", "list")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "listing rejected", line["message"])
	require.Equal(t, "WARN", line["severity"])
	require.Equal(t, "marketplaced", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "list", line["op"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWritesRotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "marketplaced.log")
	logger := Setup("marketplaced", "", Options{File: path, Output: &buf, MaxSizeMB: 1})
	logger.Info("hello")
	require.FileExists(t, path)
	require.Contains(t, buf.String(), "hello")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMasking(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("hmac_secret", "hunter2").Value.String())
	require.Equal(t, "", MaskField("hmac_secret", "").Value.String())
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, "postgres://[REDACTED]@db:5432/market", MaskDSN("postgres://user:pw@db:5432/market?sslmode=disable"))
	require.Equal(t, RedactedValue, MaskDSN("file:journal.db"))
}

func TestIsSensitive(t *testing.T) {
	require.True(t, IsSensitive("hmac_secret"))
	require.True(t, IsSensitive("Authorization"))
	require.True(t, IsSensitive("otlp_headers"))
	require.False(t, IsSensitive("token_id"))
	require.False(t, IsSensitive("requestId"))
	require.False(t, IsSensitive("op"))
}

func TestSetupRedactsSensitiveKeys(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	var buf bytes.Buffer
	logger := Setup("marketplaced", "test", Options{Output: &buf})

	logger.Info("configured",
		"auth_token", "eyJhbGciOi",
		"token_id", "7",
		"listen", ":8080",
		MaskField("hmac_secret", "s3cret"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, RedactedValue, line["auth_token"])
	require.Equal(t, RedactedValue, line["hmac_secret"])
	require.Equal(t, "7", line["token_id"])
	require.Equal(t, ":8080", line["listen"])
	require.NotContains(t, buf.String(), "s3cret")
}
