package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"nftmarket/core"
	"nftmarket/gateway/middleware"
	"nftmarket/services/marketplaced/server"
	"nftmarket/storage"
)

var (
	testOperator = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	testVault    = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	testSeller   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
)

func newTestAPI(t *testing.T) (*httptest.Server, *core.Processor) {
	t.Helper()
	proc, err := core.NewProcessor(storage.NewMemDB(), core.Config{Operator: testOperator, Vault: testVault}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(server.New(server.Config{
		Backend:       proc,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{}, nil),
	}))
	t.Cleanup(srv.Close)
	return srv, proc
}

func TestMintAndListAgainstServer(t *testing.T) {
	srv, proc := newTestAPI(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"--api", srv.URL,
		"--caller", testSeller.Hex(),
		"mint-and-list",
		"--token-uri", "ipfs://dog",
		"--price", "100",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "Minting NFT...")
	require.Contains(t, stdout.String(), "Listed!")

	events := proc.Events(0, 0)
	require.NotEmpty(t, events)
	contract := events[0].Attributes["contract"]
	require.True(t, common.IsHexAddress(contract), "collection event carries contract: %v", events[0].Attributes)

	stdout.Reset()
	code = run([]string{"--api", srv.URL, "listing", "get", "--contract", contract, "--token-id", "0"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	var listing map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &listing))
	require.Equal(t, "100", listing["price"])
	require.Equal(t, testSeller.Hex(), listing["seller"])

	stdout.Reset()
	stderr.Reset()
	code = run([]string{"--api", srv.URL, "--caller", testSeller.Hex(), "listing", "cancel", "--contract", contract, "--token-id", "0"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	code = run([]string{"--api", srv.URL, "--caller", testSeller.Hex(), "listing", "cancel", "--contract", contract, "--token-id", "0"}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "409")
}

func TestArgValidation(t *testing.T) {
	original := apiCall
	apiCall = func(method, path string, body interface{}, key string) (json.RawMessage, error) {
		t.Fatalf("unexpected API call %s %s", method, path)
		return nil, nil
	}
	defer func() { apiCall = original }()

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Usage"},
		{"unknown", []string{"frobnicate"}, "Unknown command"},
		{"listing usage", []string{"listing"}, "Usage"},
		{"bad contract", []string{"listing", "list", "--contract", "nope", "--token-id", "0", "--price", "1"}, "--contract"},
		{"missing token", []string{"listing", "buy", "--contract", testOperator.Hex(), "--payment", "1"}, "--token-id is required"},
		{"bad payment", []string{"listing", "buy", "--contract", testOperator.Hex(), "--token-id", "0", "--payment", "-1"}, "--payment"},
		{"zero mint price", []string{"mint-and-list", "--price", "0"}, "greater than zero"},
		{"proceeds address", []string{"proceeds", "get", "--address", "x"}, "--address"},
		{"token subject", []string{"token", "issue", "--subject", "alice"}, "--subject"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tc.args, &stdout, &stderr)
			require.Equal(t, 1, code)
			require.Contains(t, stderr.String(), tc.want)
		})
	}
}

func TestListingSendsIdempotencyKey(t *testing.T) {
	original := apiCall
	var gotKey, gotPath, gotMethod string
	apiCall = func(method, path string, body interface{}, key string) (json.RawMessage, error) {
		gotMethod, gotPath, gotKey = method, path, key
		return json.RawMessage(`{"ok":true}`), nil
	}
	defer func() { apiCall = original }()

	var stdout, stderr bytes.Buffer
	code := run([]string{"listing", "update", "--contract", testOperator.Hex(), "--token-id", "7", "--price", "5", "--idempotency-key", "k-1"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Equal(t, http.MethodPatch, gotMethod)
	require.Equal(t, "/v1/listings/"+testOperator.Hex()+"/7", gotPath)
	require.Equal(t, "k-1", gotKey)
	require.Contains(t, stdout.String(), `"ok": true`)
}

func TestTokenIssue(t *testing.T) {
	original := secretSource
	secretSource = func() (string, error) { return "cli-secret", nil }
	defer func() { secretSource = original }()

	var stdout, stderr bytes.Buffer
	code := run([]string{"token", "issue", "--subject", testSeller.Hex(), "--scope", "marketplace:admin, extra", "--issuer", "marketplace"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	raw := strings.TrimSpace(stdout.String())
	parsed, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return []byte("cli-secret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, testSeller.Hex(), claims["sub"])
	require.Equal(t, "marketplace:admin extra", claims["scope"])
	require.Equal(t, "marketplace", claims["iss"])
}
