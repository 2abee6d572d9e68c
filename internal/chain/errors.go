package chain

import "errors"

// Package-local sentinels describing the two ways an RPC call can fail.
// gateway.go maps these onto corerr.ErrChainTransient / corerr.ErrChainPermanent
// at the boundary the rest of the distributor actually depends on.
var (
	// ErrRPCUnavailable covers everything retryable: network errors, 5xx
	// responses, rate limiting.
	ErrRPCUnavailable = errors.New("chain: rpc endpoint unavailable")

	// ErrRPCRejected covers a well-formed RPC error response from the node
	// itself (e.g. bad transaction, unknown account).
	ErrRPCRejected = errors.New("chain: rpc request rejected")
)
