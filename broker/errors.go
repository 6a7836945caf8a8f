package broker

import (
	"errors"
	"fmt"
)

// ErrNoPosition marks a close attempt against a ticket that no longer
// resolves (already closed by a stop, another cycle, or the venue).
// Callers treat it as a stale-reference no-op, not a failure.
var ErrNoPosition = errors.New("position not found")

// Code is a venue rejection code. The set mirrors the retcode families
// real dealing servers return; gateways map their native codes onto it.
type Code int

const (
	CodeNone Code = iota
	CodeRequote
	CodeRejected
	CodeInsufficientFunds
	CodeMarketClosed
	CodeInvalidStops
	CodeInvalidVolume
	CodeTradeDisabled
	CodeOffQuotes
	CodeTimeout
	CodePriceChanged
)

// CodeDescription maps a rejection code to a human-readable reason.
func CodeDescription(c Code) string {
	switch c {
	case CodeNone:
		return "no error"
	case CodeRequote:
		return "requote: price no longer available"
	case CodeRejected:
		return "request rejected by dealer"
	case CodeInsufficientFunds:
		return "insufficient funds for requested volume"
	case CodeMarketClosed:
		return "market closed"
	case CodeInvalidStops:
		return "invalid stop loss or take profit placement"
	case CodeInvalidVolume:
		return "invalid volume for symbol"
	case CodeTradeDisabled:
		return "trading disabled for symbol"
	case CodeOffQuotes:
		return "off quotes: no price from venue"
	case CodeTimeout:
		return "request timed out"
	case CodePriceChanged:
		return "price changed during processing"
	}
	return fmt.Sprintf("unknown error code %d", int(c))
}

// ExecError is an execution failure surfaced by a gateway. It carries
// the venue code so callers can report a description without string
// matching.
type ExecError struct {
	Code Code
	Op   string // "open" or "close"
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, CodeDescription(e.Code))
}

// NewExecError builds an ExecError for the given operation and code.
func NewExecError(op string, code Code) error {
	return &ExecError{Code: code, Op: op}
}

// AsExecError unwraps err to an *ExecError if there is one.
func AsExecError(err error) (*ExecError, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
