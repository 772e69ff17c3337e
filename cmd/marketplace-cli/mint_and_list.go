package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// runMintAndList registers a collection unless --contract is given, mints a
// token to the caller, approves the marketplace operator and lists the token.
func runMintAndList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint-and-list", stderr)
	var (
		contract string
		name     string
		symbol   string
		tokenURI string
		price    string
	)
	fs.StringVar(&contract, "contract", "", "existing collection address")
	fs.StringVar(&name, "name", "Dogie", "collection name when registering")
	fs.StringVar(&symbol, "symbol", "DOG", "collection symbol when registering")
	fs.StringVar(&tokenURI, "token-uri", "", "collection token URI when registering")
	fs.StringVar(&price, "price", "", "listing price")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	listPrice, err := parseAmountFlag("--price", price, false)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if contract != "" && !common.IsHexAddress(contract) {
		return printError(stderr, "--contract must be a hex address")
	}

	if contract == "" {
		fmt.Fprintln(stdout, "Registering collection...")
		result, err := apiCall(http.MethodPost, "/v1/collections", map[string]string{
			"name":     name,
			"symbol":   symbol,
			"tokenUri": tokenURI,
		}, "")
		if code := handleCallError(stderr, err); code != 0 {
			return code
		}
		var col struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(result, &col); err != nil || !common.IsHexAddress(col.Address) {
			return printError(stderr, "unexpected collection response")
		}
		contract = col.Address
	}
	contractHex := common.HexToAddress(contract).Hex()

	fmt.Fprintln(stdout, "Minting NFT...")
	result, err := apiCall(http.MethodPost, "/v1/collections/"+contractHex+"/mint", map[string]string{}, "")
	if code := handleCallError(stderr, err); code != 0 {
		return code
	}
	var minted struct {
		TokenID string `json:"tokenId"`
	}
	if err := json.Unmarshal(result, &minted); err != nil || minted.TokenID == "" {
		return printError(stderr, "unexpected mint response")
	}

	fmt.Fprintln(stdout, "Approving NFT...")
	if _, err := apiCall(http.MethodPost, "/v1/collections/"+contractHex+"/"+minted.TokenID+"/approve", map[string]string{}, ""); err != nil {
		return handleCallError(stderr, err)
	}

	fmt.Fprintln(stdout, "Listing NFT...")
	result, err = apiCall(http.MethodPost, "/v1/listings", map[string]string{
		"contract": contractHex,
		"tokenId":  minted.TokenID,
		"price":    listPrice.Dec(),
	}, "")
	if code := handleCallError(stderr, err); code != 0 {
		return code
	}
	writeResult(stdout, result)
	fmt.Fprintln(stdout, "Listed!")
	return 0
}
