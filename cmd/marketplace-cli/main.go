package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	envAPI    = "MARKETPLACE_API"
	envToken  = "MARKETPLACE_TOKEN"
	envSecret = "MARKETPLACE_AUTH_SECRET"
)

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API returned %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// clientOptions are the global flags shared by every subcommand.
type clientOptions struct {
	endpoint string
	token    string
	caller   string
}

var (
	opts    clientOptions
	apiCall = callAPI
	httpDo  = (&http.Client{Timeout: 30 * time.Second}).Do
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("marketplace-cli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, usage()) }
	fs.StringVar(&opts.endpoint, "api", envOr(envAPI, "http://127.0.0.1:8080"), "marketplaced base URL")
	fs.StringVar(&opts.token, "token", os.Getenv(envToken), "bearer token")
	fs.StringVar(&opts.caller, "caller", "", "caller address sent as X-Caller-Address when the server runs without auth")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch rest[0] {
	case "listing":
		return runListingCommand(rest[1:], stdout, stderr)
	case "proceeds":
		return runProceedsCommand(rest[1:], stdout, stderr)
	case "mint-and-list":
		return runMintAndList(rest[1:], stdout, stderr)
	case "token":
		return runTokenCommand(rest[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: marketplace-cli [--api URL] [--token JWT] [--caller ADDR] <command> [flags]

Commands:
  listing list|update|cancel|buy|get   manage listings
  proceeds get|withdraw                inspect or withdraw seller proceeds
  mint-and-list                        register (optional), mint, approve and list a token
  token issue                          sign an access token with the shared secret
`)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "Request failed: %v\n", err)
	return 1
}

func writeResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(w, string(result))
		return
	}
	fmt.Fprintln(w, pretty.String())
}

// callAPI performs one request against marketplaced and returns the raw body
// of a 2xx response.
func callAPI(method, path string, body interface{}, idempotencyKey string) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, strings.TrimRight(opts.endpoint, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.caller != "" {
		req.Header.Set("X-Caller-Address", opts.caller)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := httpDo(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apiError{Status: resp.StatusCode, Body: string(payload)}
	}
	return payload, nil
}
