// Package config loads the distributor's environment-driven configuration:
// where the database and retry queue files live, which cluster and mint to
// talk to, and which wallet funds every transfer.
package config

import (
	"fmt"
	"os"

	"github.com/klingon-exchange/splgiver/internal/chain"
	"github.com/klingon-exchange/splgiver/internal/corerr"
)

// Config holds everything Bootstrap needs to wire the rest of the process
// together.
type Config struct {
	DataDir     string // directory holding the sqlite database
	ClusterURL  string // Solana JSON-RPC endpoint
	MainWallet  *chain.Keypair
	MintPubkey  chain.Pubkey
	GroupsYAML  string
	BuyersCSV   string
	PendingJSON string
}

const defaultPendingJSON = "../pending_ops.json"

// FromEnv reads DATABASE_URL, CLIENT_URL, MAIN_WALLET, MINT_PUBKEY,
// GROUPS_YAML, BUYERS_CSV, and PENDING_JSON from the process environment.
func FromEnv() (*Config, error) {
	dataDir, err := require("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	clusterURL, err := require("CLIENT_URL")
	if err != nil {
		return nil, err
	}
	mainWalletStr, err := require("MAIN_WALLET")
	if err != nil {
		return nil, err
	}
	mintStr, err := require("MINT_PUBKEY")
	if err != nil {
		return nil, err
	}
	groupsYAML, err := require("GROUPS_YAML")
	if err != nil {
		return nil, err
	}
	buyersCSV, err := require("BUYERS_CSV")
	if err != nil {
		return nil, err
	}

	mainWallet, err := chain.ParseKeypair(mainWalletStr)
	if err != nil {
		return nil, fmt.Errorf("%w: MAIN_WALLET: %v", corerr.ErrParse, err)
	}
	mint, err := chain.ParsePubkey(mintStr)
	if err != nil {
		return nil, fmt.Errorf("%w: MINT_PUBKEY: %v", corerr.ErrParse, err)
	}

	pendingJSON := os.Getenv("PENDING_JSON")
	if pendingJSON == "" {
		pendingJSON = defaultPendingJSON
	}

	return &Config{
		DataDir:     dataDir,
		ClusterURL:  clusterURL,
		MainWallet:  mainWallet,
		MintPubkey:  mint,
		GroupsYAML:  groupsYAML,
		BuyersCSV:   buyersCSV,
		PendingJSON: pendingJSON,
	}, nil
}

func require(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s is not set", corerr.ErrConfigMissing, name)
	}
	return v, nil
}
