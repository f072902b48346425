package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable covers network failures, timeouts and 5xx answers.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrRateLimited is returned when the provider signals a rate limit.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrMalformedResponse means expected fields were absent or unparsable.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrEmptyResponse means the provider answered with an empty body.
	ErrEmptyResponse = errors.New("empty provider response")
)

// APIError is an explicit error marker found in a provider response body.
type APIError struct {
	Provider    string
	Message     string
	RateLimited bool
}

func (e *APIError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s: rate limited: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: api error: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.RateLimited {
		return ErrRateLimited
	}
	return ErrUnavailable
}

// SymbolError scopes a failure to a single symbol of a batch.
type SymbolError struct {
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string { return e.Symbol + ": " + e.Err.Error() }

func (e *SymbolError) Unwrap() error { return e.Err }

// SymbolErrors extracts the per-symbol failures carried by err, which is
// usually the errors.Join of a partially successful batch.
func SymbolErrors(err error) map[string]error {
	out := map[string]error{}
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case nil:
		case *SymbolError:
			out[x.Symbol] = x.Err
		case interface{ Unwrap() []error }:
			for _, c := range x.Unwrap() {
				walk(c)
			}
		case interface{ Unwrap() error }:
			walk(x.Unwrap())
		}
	}
	walk(err)
	return out
}

// Classify names the failure kind of err for logs and reports.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrMalformedResponse):
		return "data_error"
	default:
		return "unavailable"
	}
}
