package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func runListingCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, listingUsage())
		return 1
	}
	switch args[0] {
	case "list":
		return runListingWrite(args[1:], stdout, stderr, "list")
	case "update":
		return runListingWrite(args[1:], stdout, stderr, "update")
	case "cancel":
		return runListingWrite(args[1:], stdout, stderr, "cancel")
	case "buy":
		return runListingWrite(args[1:], stdout, stderr, "buy")
	case "get":
		return runListingGet(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown listing subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, listingUsage())
		return 1
	}
}

func listingUsage() string {
	return strings.TrimSpace(`
Usage: marketplace-cli listing <subcommand> --contract ADDR --token-id ID [flags]

Subcommands:
  list    --price AMOUNT      list a token you own and approved
  update  --price AMOUNT      change the price of your listing
  cancel                      remove your listing
  buy     --payment AMOUNT    buy a listed token
  get                         show a listing
`)
}

type assetFlags struct {
	contract string
	tokenID  string
}

func (a *assetFlags) validate() (common.Address, *uint256.Int, error) {
	if !common.IsHexAddress(a.contract) {
		return common.Address{}, nil, fmt.Errorf("--contract must be a hex address")
	}
	id, err := parseAmountFlag("--token-id", a.tokenID, true)
	if err != nil {
		return common.Address{}, nil, err
	}
	return common.HexToAddress(a.contract), id, nil
}

// parseAmountFlag parses a decimal amount. allowZero admits token id 0.
func parseAmountFlag(name, raw string, allowZero bool) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a non-negative integer", name)
	}
	if !allowZero && v.IsZero() {
		return nil, fmt.Errorf("%s must be greater than zero", name)
	}
	return v, nil
}

func runListingWrite(args []string, stdout, stderr io.Writer, action string) int {
	fs := newFlagSet("listing "+action, stderr)
	var (
		asset  assetFlags
		amount string
		key    string
	)
	fs.StringVar(&asset.contract, "contract", "", "collection contract address")
	fs.StringVar(&asset.tokenID, "token-id", "", "token id")
	fs.StringVar(&key, "idempotency-key", "", "idempotency key (generated when empty)")
	switch action {
	case "list", "update":
		fs.StringVar(&amount, "price", "", "listing price")
	case "buy":
		fs.StringVar(&amount, "payment", "", "payment amount")
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	contract, tokenID, err := asset.validate()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if key == "" {
		key = uuid.NewString()
	}
	base := "/v1/listings/" + contract.Hex() + "/" + tokenID.Dec()

	var (
		method string
		path   string
		body   interface{}
	)
	switch action {
	case "list":
		// Zero prices are rejected by the server; let it report the error class.
		price, err := parseAmountFlag("--price", amount, true)
		if err != nil {
			return printError(stderr, err.Error())
		}
		method, path = http.MethodPost, "/v1/listings"
		body = map[string]string{"contract": contract.Hex(), "tokenId": tokenID.Dec(), "price": price.Dec()}
	case "update":
		price, err := parseAmountFlag("--price", amount, true)
		if err != nil {
			return printError(stderr, err.Error())
		}
		method, path = http.MethodPatch, base
		body = map[string]string{"price": price.Dec()}
	case "cancel":
		method, path = http.MethodDelete, base
	case "buy":
		payment, err := parseAmountFlag("--payment", amount, true)
		if err != nil {
			return printError(stderr, err.Error())
		}
		method, path = http.MethodPost, base+"/buy"
		body = map[string]string{"payment": payment.Dec()}
	}
	result, err := apiCall(method, path, body, key)
	if code := handleCallError(stderr, err); code != 0 {
		return code
	}
	writeResult(stdout, result)
	return 0
}

func runListingGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("listing get", stderr)
	var asset assetFlags
	fs.StringVar(&asset.contract, "contract", "", "collection contract address")
	fs.StringVar(&asset.tokenID, "token-id", "", "token id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	contract, tokenID, err := asset.validate()
	if err != nil {
		return printError(stderr, err.Error())
	}
	result, err := apiCall(http.MethodGet, "/v1/listings/"+contract.Hex()+"/"+tokenID.Dec(), nil, "")
	if code := handleCallError(stderr, err); code != 0 {
		return code
	}
	writeResult(stdout, result)
	return 0
}

func runProceedsCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: marketplace-cli proceeds get --address ADDR | withdraw")
		return 1
	}
	switch args[0] {
	case "get":
		fs := newFlagSet("proceeds get", stderr)
		var addr string
		fs.StringVar(&addr, "address", "", "seller address")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if !common.IsHexAddress(addr) {
			return printError(stderr, "--address must be a hex address")
		}
		result, err := apiCall(http.MethodGet, "/v1/proceeds/"+common.HexToAddress(addr).Hex(), nil, "")
		if code := handleCallError(stderr, err); code != 0 {
			return code
		}
		writeResult(stdout, result)
		return 0
	case "withdraw":
		fs := newFlagSet("proceeds withdraw", stderr)
		var key string
		fs.StringVar(&key, "idempotency-key", "", "idempotency key (generated when empty)")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if key == "" {
			key = uuid.NewString()
		}
		result, err := apiCall(http.MethodPost, "/v1/proceeds/withdraw", nil, key)
		if code := handleCallError(stderr, err); code != 0 {
			return code
		}
		writeResult(stdout, result)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown proceeds subcommand: %s\n", args[0])
		return 1
	}
}
