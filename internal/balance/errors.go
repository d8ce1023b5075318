// Package balance implements the balance acquisition engine: the live
// cache, the per-wallet fetcher, and the cycle scheduler.
package balance

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrCycleRunning   = errors.New("a refresh cycle is already running")
	ErrWalletNotFound = errors.New("wallet not configured")
)

// ErrorKind classifies fetch failures. All kinds are recovered locally:
// network/extraction/validation drive the retry-then-fallback chain,
// persistence failures are logged without interrupting the cache update.
type ErrorKind int

const (
	NetworkError ErrorKind = iota
	ExtractionError
	ValidationError
	PersistenceError
)

func (k ErrorKind) String() string {
	switch k {
	case NetworkError:
		return "network"
	case ExtractionError:
		return "extraction"
	case ValidationError:
		return "validation"
	case PersistenceError:
		return "persistence"
	default:
		return "unknown"
	}
}

// FetchError is a classified failure from one fetch attempt.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func networkErr(format string, args ...any) *FetchError {
	return &FetchError{Kind: NetworkError, Err: fmt.Errorf(format, args...)}
}

func extractionErr(format string, args ...any) *FetchError {
	return &FetchError{Kind: ExtractionError, Err: fmt.Errorf(format, args...)}
}

func validationErr(format string, args ...any) *FetchError {
	return &FetchError{Kind: ValidationError, Err: fmt.Errorf(format, args...)}
}

func persistErr(format string, args ...any) *FetchError {
	return &FetchError{Kind: PersistenceError, Err: fmt.Errorf(format, args...)}
}
