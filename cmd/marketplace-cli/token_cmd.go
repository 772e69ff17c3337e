package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/cmd/internal/passphrase"
	"nftmarket/gateway/middleware"
)

var secretSource = func() (string, error) {
	return passphrase.NewSource(envSecret, "marketplace signing secret").Get()
}

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "issue" {
		fmt.Fprintln(stderr, "Usage: marketplace-cli token issue --subject ADDR [--scope s1,s2] [--ttl 1h] [--issuer I] [--audience A]")
		return 1
	}
	fs := newFlagSet("token issue", stderr)
	var (
		subject  string
		scopes   string
		ttl      time.Duration
		issuer   string
		audience string
	)
	fs.StringVar(&subject, "subject", "", "caller address the token authenticates")
	fs.StringVar(&scopes, "scope", "", "comma separated scopes")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	fs.StringVar(&issuer, "issuer", "", "issuer claim")
	fs.StringVar(&audience, "audience", "", "audience claim")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if !common.IsHexAddress(subject) {
		return printError(stderr, "--subject must be a hex address")
	}
	if ttl <= 0 {
		return printError(stderr, "--ttl must be positive")
	}
	var scopeList []string
	for _, scope := range strings.Split(scopes, ",") {
		if s := strings.TrimSpace(scope); s != "" {
			scopeList = append(scopeList, s)
		}
	}
	secret, err := secretSource()
	if err != nil {
		return printError(stderr, err.Error())
	}
	token, err := middleware.IssueToken(secret, issuer, audience, common.HexToAddress(subject), scopeList, ttl)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}
