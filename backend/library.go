package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dnsparity/dnsparity/config"
	"github.com/dnsparity/dnsparity/log"
	"github.com/dnsparity/dnsparity/model"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Exchanger is the send path of the resolver library under test. The
// library owns the signature, the harness only consumes it.
type Exchanger interface {
	Exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, time.Duration, error)
}

// LibraryBackend invokes a resolver library directly, bypassing its cache
// and retry logic so the harness observes protocol level behavior and not
// client side smoothing.
type LibraryBackend struct {
	exchanger Exchanger
	logger    *logrus.Entry
}

// NewLibraryBackend creates a backend wrapping the given exchanger
func NewLibraryBackend(exchanger Exchanger) *LibraryBackend {
	return &LibraryBackend{
		exchanger: exchanger,
		logger:    log.PrefixedLog("library_backend"),
	}
}

func (b *LibraryBackend) String() string {
	if s, ok := b.exchanger.(fmt.Stringer); ok {
		return fmt.Sprintf("library '%s'", s)
	}

	return "library"
}

// Query invokes the library's send path once, without retries
func (b *LibraryBackend) Query(ctx context.Context, query *model.Query) (*model.RawResponse, error) {
	msg := query.Msg()

	response, rtt, err := b.exchanger.Exchange(ctx, msg)
	if err != nil {
		var be *Error
		if errors.As(err, &be) {
			return nil, be
		}

		if errors.Is(err, dns.ErrShortRead) {
			return nil, &Error{Kind: ErrorKindMalformedResponse, Cause: err}
		}

		return nil, mapTransportError(err)
	}

	if checkErr := checkResponse(msg, response); checkErr != nil {
		return nil, checkErr
	}

	wire, err := response.Pack()
	if err != nil {
		return nil, &Error{
			Kind:  ErrorKindMalformedResponse,
			Cause: fmt.Errorf("library produced an unencodable response: %w", err),
		}
	}

	b.logger.WithFields(logrus.Fields{
		"return_code":      dns.RcodeToString[response.Rcode],
		"response_time_ms": rtt.Milliseconds(),
	}).Trace("received response from library")

	return &model.RawResponse{
		Res:      response,
		Wire:     wire,
		Protocol: model.UDP,
		RTT:      rtt,
	}, nil
}

// ClientExchanger sends through the miekg/dns client, the Go resolver
// library exercised by the harness.
type ClientExchanger struct {
	client  *dns.Client
	address string
}

// NewClientExchanger creates an exchanger for the given upstream
func NewClientExchanger(upstream config.Upstream, timeout time.Duration) *ClientExchanger {
	proto := upstream.Net
	if proto == "" {
		proto = config.NetUDP
	}

	return &ClientExchanger{
		client: &dns.Client{
			Net:     proto,
			Timeout: timeout,
			UDPSize: udpReadBufferSize,
		},
		address: upstream.Address(),
	}
}

func (e *ClientExchanger) String() string {
	return fmt.Sprintf("miekg/dns @ %s", e.address)
}

// Exchange implements `Exchanger`.
func (e *ClientExchanger) Exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	return e.client.ExchangeContext(ctx, msg, e.address)
}

// HandlerExchanger drives a dns.Handler fully in-process, without any
// network transport. Used for smoke runs and as a test fixture.
type HandlerExchanger struct {
	handler dns.Handler
}

// NewHandlerExchanger creates an exchanger around the given handler
func NewHandlerExchanger(handler dns.Handler) *HandlerExchanger {
	return &HandlerExchanger{handler: handler}
}

func (e *HandlerExchanger) String() string {
	return "in-process handler"
}

// Exchange implements `Exchanger`.
func (e *HandlerExchanger) Exchange(_ context.Context, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	start := time.Now()
	writer := &memResponseWriter{}

	e.handler.ServeDNS(writer, msg)

	if writer.msg == nil {
		return nil, 0, errors.New("handler produced no response")
	}

	return writer.msg, time.Since(start), nil
}

// memResponseWriter captures the handler's response in memory
type memResponseWriter struct {
	msg *dns.Msg
}

func (w *memResponseWriter) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: 0}
}

func (w *memResponseWriter) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: 0}
}

func (w *memResponseWriter) WriteMsg(msg *dns.Msg) error {
	w.msg = msg

	return nil
}

func (w *memResponseWriter) Write(b []byte) (int, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(b); err != nil {
		return 0, err
	}

	w.msg = msg

	return len(b), nil
}

func (w *memResponseWriter) Close() error        { return nil }
func (w *memResponseWriter) TsigStatus() error   { return nil }
func (w *memResponseWriter) TsigTimersOnly(bool) {}
func (w *memResponseWriter) Hijack()             {}
