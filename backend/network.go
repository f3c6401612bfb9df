package backend

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dnsparity/dnsparity/config"
	"github.com/dnsparity/dnsparity/log"
	"github.com/dnsparity/dnsparity/model"
	"github.com/dnsparity/dnsparity/util"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const (
	udpReadBufferSize = 4096
	tcpLengthPrefix   = 2
)

// NetworkBackend talks to a reference nameserver over raw UDP/TCP wire
// bytes. It serializes the query itself, so the harness observes the exact
// octets a backend produces, including unparseable garbage.
//
// Connections are created per query and never reused, so connection state
// cannot mask behavior differences between cases.
type NetworkBackend struct {
	upstream config.Upstream
	timeout  time.Duration
	dialer   *net.Dialer
	logger   *logrus.Entry
}

// NewNetworkBackend creates a backend for the given upstream
func NewNetworkBackend(upstream config.Upstream, timeout time.Duration) *NetworkBackend {
	return &NetworkBackend{
		upstream: upstream,
		timeout:  timeout,
		dialer:   &net.Dialer{},
		logger:   log.PrefixedLog("network_backend"),
	}
}

func (b *NetworkBackend) String() string {
	return fmt.Sprintf("network '%s'", b.upstream)
}

// Query sends the query over UDP and retries exactly once over TCP if the
// response came back truncated. No other failure is retried here.
func (b *NetworkBackend) Query(ctx context.Context, query *model.Query) (*model.RawResponse, error) {
	msg := query.Msg()

	wire, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("can't pack query: %w", err)
	}

	if b.upstream.Net == config.NetTCP {
		return b.exchangeTCP(ctx, msg, wire)
	}

	response, err := b.exchangeUDP(ctx, msg, wire)
	if err != nil {
		return nil, err
	}

	if response.Res.Truncated {
		b.logger.WithFields(logrus.Fields{
			"query":    query.String(),
			"upstream": b.upstream.Address(),
		}).Debug("truncated UDP response, re-issuing over TCP")

		return b.exchangeTCP(ctx, msg, wire)
	}

	return response, nil
}

func (b *NetworkBackend) exchangeUDP(ctx context.Context, msg *dns.Msg, wire []byte) (*model.RawResponse, error) {
	start := time.Now()

	conn, err := b.dialer.DialContext(ctx, "udp", b.upstream.Address())
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline(ctx, b.timeout)); err != nil {
		return nil, mapTransportError(err)
	}

	if _, err := conn.Write(wire); err != nil {
		return nil, mapTransportError(err)
	}

	buf := make([]byte, udpReadBufferSize)

	n, err := conn.Read(buf)
	if err != nil {
		return nil, mapTransportError(err)
	}

	return b.parseResponse(msg, buf[:n], model.UDP, time.Since(start))
}

func (b *NetworkBackend) exchangeTCP(ctx context.Context, msg *dns.Msg, wire []byte) (*model.RawResponse, error) {
	start := time.Now()

	conn, err := b.dialer.DialContext(ctx, "tcp", b.upstream.Address())
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline(ctx, b.timeout)); err != nil {
		return nil, mapTransportError(err)
	}

	// DNS over TCP prefixes each message with its length (RFC 1035 4.2.2)
	framed := make([]byte, tcpLengthPrefix+len(wire))
	binary.BigEndian.PutUint16(framed, uint16(len(wire)))
	copy(framed[tcpLengthPrefix:], wire)

	if _, err := conn.Write(framed); err != nil {
		return nil, mapTransportError(err)
	}

	lengthBuf := make([]byte, tcpLengthPrefix)
	if _, err := io.ReadFull(conn, lengthBuf); err != nil {
		return nil, mapTransportError(err)
	}

	responseBuf := make([]byte, binary.BigEndian.Uint16(lengthBuf))
	if _, err := io.ReadFull(conn, responseBuf); err != nil {
		return nil, mapTransportError(err)
	}

	return b.parseResponse(msg, responseBuf, model.TCP, time.Since(start))
}

// parseResponse deserializes the raw bytes. Unparseable bytes are a hard
// failure of the producing backend, never silently skipped.
func (b *NetworkBackend) parseResponse(req *dns.Msg, wire []byte,
	protocol model.RequestProtocol, rtt time.Duration,
) (*model.RawResponse, error) {
	response := new(dns.Msg)

	if err := response.Unpack(wire); err != nil {
		return nil, &Error{
			Kind:  ErrorKindMalformedResponse,
			Cause: fmt.Errorf("can't unpack response bytes: %w", err),
		}
	}

	if err := checkResponse(req, response); err != nil {
		return nil, err
	}

	b.logger.WithFields(logrus.Fields{
		"question":         util.QuestionToString(req.Question),
		"return_code":      dns.RcodeToString[response.Rcode],
		"protocol":         protocol.String(),
		"response_time_ms": rtt.Milliseconds(),
	}).Trace("received response from upstream")

	return &model.RawResponse{
		Res:      response,
		Wire:     wire,
		Protocol: protocol,
		RTT:      rtt,
	}, nil
}
