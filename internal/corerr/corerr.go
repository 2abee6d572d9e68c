// Package corerr enumerates the error kinds the distributor core
// distinguishes between, as sentinel values other packages wrap with
// fmt.Errorf("...: %w", ...) and callers unwrap with errors.Is/errors.As.
package corerr

import "errors"

var (
	// ErrConfigMissing indicates a required environment variable or file is absent.
	ErrConfigMissing = errors.New("config missing")

	// ErrParse indicates a YAML/CSV/JSON document could not be parsed.
	ErrParse = errors.New("parse error")

	// ErrStoreUnavailable indicates the database could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates a row addressed by id or wallet does not exist.
	ErrNotFound = errors.New("not found")

	// ErrChainTransient indicates a chain RPC failure that is safe to retry.
	ErrChainTransient = errors.New("chain transient error")

	// ErrChainPermanent indicates a chain RPC failure that retrying cannot fix.
	ErrChainPermanent = errors.New("chain permanent error")

	// ErrInsufficientFunding indicates a group's allotment is smaller than
	// the sum of its buyers' pending tokens.
	ErrInsufficientFunding = errors.New("insufficient funding")

	// ErrInvariantViolation indicates a data invariant was found broken.
	ErrInvariantViolation = errors.New("invariant violation")
)
