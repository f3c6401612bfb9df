// Package backend contains the adapters the harness queries through: a
// network adapter speaking raw DNS wire format to a reference nameserver and
// a library adapter invoking a resolver library's send path directly.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dnsparity/dnsparity/model"

	"github.com/miekg/dns"
)

// ErrorKind classifies backend query failures
type ErrorKind int

const (
	// ErrorKindTimeout means no response arrived in time
	ErrorKindTimeout ErrorKind = iota
	// ErrorKindConnectionRefused means the transport could not be established
	ErrorKindConnectionRefused
	// ErrorKindMalformedResponse means the response bytes could not be
	// parsed as a DNS message
	ErrorKindMalformedResponse
	// ErrorKindProtocolError means the response violates the protocol,
	// e.g. a mismatched message id
	ErrorKindProtocolError
)

func (k ErrorKind) String() string {
	names := [...]string{"TIMEOUT", "CONNECTION_REFUSED", "MALFORMED_RESPONSE", "PROTOCOL_ERROR"}

	return names[k]
}

// Error is a typed backend failure. Timeout and connection errors make a
// test case inconclusive, malformed responses are a compatibility bug of the
// producing backend.
type Error struct {
	Kind  ErrorKind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err is a backend error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}

	return false
}

// IsTransient reports whether err is a transport failure which is no
// evidence of behavioral divergence (recoverable by a re-run)
func IsTransient(err error) bool {
	return IsKind(err, ErrorKindTimeout) || IsKind(err, ErrorKindConnectionRefused)
}

// Backend issues a query and yields the raw response
type Backend interface {
	fmt.Stringer

	// Query sends the given query and awaits the response. The context
	// carries the per-attempt deadline.
	Query(ctx context.Context, query *model.Query) (*model.RawResponse, error)
}

// mapTransportError classifies transport level failures
func mapTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrorKindTimeout, Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrorKindTimeout, Cause: err}
	}

	// refused, reset, unreachable: the connection could not be used
	return &Error{Kind: ErrorKindConnectionRefused, Cause: err}
}

// checkResponse validates protocol invariants of a parsed response
func checkResponse(req, resp *dns.Msg) *Error {
	if resp.Id != req.Id {
		return &Error{
			Kind:  ErrorKindProtocolError,
			Cause: fmt.Errorf("response id %d does not match query id %d", resp.Id, req.Id),
		}
	}

	if !resp.Response {
		return &Error{
			Kind:  ErrorKindProtocolError,
			Cause: errors.New("response flag not set"),
		}
	}

	return nil
}

// deadline derives the effective exchange deadline from context and timeout
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)

	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}

	return d
}
