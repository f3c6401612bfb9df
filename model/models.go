// Package model contains the data types shared by the corpus generator,
// the backends and the comparison engine.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// ednsUDPSize is the EDNS0 UDP buffer size advertised on outgoing queries
const ednsUDPSize = 4096

// RequestProtocol represents the transport protocol of a query
type RequestProtocol uint8

const (
	// UDP is the UDP protocol
	UDP RequestProtocol = iota
	// TCP is the TCP protocol
	TCP
)

func (p RequestProtocol) String() string {
	names := [...]string{"UDP", "TCP"}

	return names[p]
}

// Query describes a single DNS question to be issued against all backends.
// A Query is immutable once constructed, both backends receive the identical
// wire-level question.
type Query struct {
	// Name is the owner name, stored as FQDN
	Name string
	// Type is the record type to ask for
	Type dns.Type
	// Class is the query class, almost always IN
	Class dns.Class
	// DNSSEC requests DNSSEC records via the EDNS0 DO bit
	DNSSEC bool
	// RecursionDesired sets the RD header bit
	RecursionDesired bool
	// ExpectError marks corpus entries which are intentionally malformed;
	// both backends are expected to answer with an error code, not to crash
	ExpectError bool
}

// NewQuery creates a query for the given name and type with default
// class IN and recursion desired.
func NewQuery(name string, qType dns.Type) *Query {
	return &Query{
		Name:             dns.Fqdn(name),
		Type:             qType,
		Class:            dns.Class(dns.ClassINET),
		RecursionDesired: true,
	}
}

// Msg builds the wire message for this query. Each call returns a fresh
// message so that backends never share mutable state.
func (q *Query) Msg() *dns.Msg {
	msg := new(dns.Msg)
	msg.Id = dns.Id()
	msg.Question = []dns.Question{{
		Name:   dns.Fqdn(q.Name),
		Qtype:  uint16(q.Type),
		Qclass: uint16(q.Class),
	}}
	msg.RecursionDesired = q.RecursionDesired

	if q.DNSSEC {
		msg.SetEdns0(ednsUDPSize, true)
	}

	return msg
}

// Key returns a canonical string identifying the query value
func (q *Query) Key() string {
	return fmt.Sprintf("%s/%s/%s/do=%t/rd=%t",
		dns.CanonicalName(q.Name), q.Type.String(), q.Class.String(), q.DNSSEC, q.RecursionDesired)
}

func (q *Query) String() string {
	return fmt.Sprintf("%s (%s)", q.Name, q.Type.String())
}

// MarshalJSON implements `json.Marshaler`.
func (q *Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name             string `json:"name"`
		Type             string `json:"type"`
		Class            string `json:"class"`
		DNSSEC           bool   `json:"dnssecOk"`
		RecursionDesired bool   `json:"recursionDesired"`
	}{
		Name:             q.Name,
		Type:             q.Type.String(),
		Class:            q.Class.String(),
		DNSSEC:           q.DNSSEC,
		RecursionDesired: q.RecursionDesired,
	})
}

// RawResponse is the unmodified answer of a single backend. It is owned by
// the backend which produced it until handed to the normalizer.
type RawResponse struct {
	// Res is the parsed response message
	Res *dns.Msg
	// Wire contains the raw response bytes as received from the backend
	Wire []byte
	// Protocol is the transport the response was finally received over
	Protocol RequestProtocol
	// RTT is the round trip time of the exchange
	RTT time.Duration
}

// RR is the canonical representation of a resource record used for
// comparison. Equality ignores TTL exactness, the comparator applies a
// tolerance band instead.
type RR struct {
	// Name is the lowercased FQDN owner name
	Name string `json:"name"`
	// Type is the record type
	Type uint16 `json:"type"`
	// Class is the record class
	Class uint16 `json:"class"`
	// TTL is kept verbatim, bounds 0..2^31-1 are enforced by the normalizer
	TTL uint32 `json:"ttl"`
	// Rdata is the textual record data
	Rdata string `json:"rdata"`
	// Canonical is the canonical (lowercased, uncompressed) wire encoding
	Canonical []byte `json:"-"`
}

// SameData reports whether both records carry identical owner, type, class
// and rdata. TTL is intentionally not part of record identity.
func (r *RR) SameData(other *RR) bool {
	return r.Name == other.Name &&
		r.Type == other.Type &&
		r.Class == other.Class &&
		string(r.Canonical) == string(other.Canonical)
}

func (r *RR) String() string {
	return fmt.Sprintf("%s %d %s %s %s",
		r.Name, r.TTL, dns.ClassToString[r.Class], dns.TypeToString[r.Type], r.Rdata)
}

// EDNSInfo carries the EDNS negotiation parameters of a response
type EDNSInfo struct {
	UDPSize uint16   `json:"udpSize"`
	Do      bool     `json:"do"`
	Options []uint16 `json:"options,omitempty"`
}

// NormalizedResponse is the canonical, comparable form of a RawResponse.
// It is a pure function of the raw message and never mutated after creation.
type NormalizedResponse struct {
	// Rcode is the response code
	Rcode int
	// Authoritative mirrors the AA header bit
	Authoritative bool
	// Answer, Authority and Additional are sorted by canonical key
	Answer     []RR
	Authority  []RR
	Additional []RR
	// Signatures holds the RRSIG records of all sections, separated out
	// because signatures from different keys are never byte-comparable
	Signatures []*dns.RRSIG
	// EDNS is nil if the response carries no OPT record
	EDNS *EDNSInfo
	// Msg is the parsed original message, retained for DNSSEC verification
	Msg *dns.Msg
}

// Verdict is the comparison outcome for a single test case
type Verdict int

const (
	// VerdictEquivalent means both backends answered semantically equal
	VerdictEquivalent Verdict = iota
	// VerdictDivergent means the backends observably disagree
	VerdictDivergent
	// VerdictInconclusive means a transport failure prevented a comparison
	VerdictInconclusive
)

func (v Verdict) String() string {
	names := [...]string{"EQUIVALENT", "DIVERGENT", "INCONCLUSIVE"}

	return names[v]
}

// MarshalText implements `encoding.TextMarshaler`.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Divergence describes the first field two backends disagreed on
type Divergence struct {
	// Field names the diverging aspect, e.g. response_code, ttl, answer
	Field string `json:"field"`
	// A is the value observed at the first backend
	A string `json:"backendA"`
	// B is the value observed at the second backend
	B string `json:"backendB"`
}

func (d *Divergence) String() string {
	return fmt.Sprintf("field=%s: %q != %q", d.Field, d.A, d.B)
}

// ComparisonResult is the verdict of the comparator for one pair of
// normalized responses
type ComparisonResult struct {
	Verdict    Verdict     `json:"verdict"`
	Divergence *Divergence `json:"divergence,omitempty"`
}

// VerificationResult represents the outcome of DNSSEC validation
type VerificationResult int

const (
	// VerificationSecure means the full chain of trust validates
	VerificationSecure VerificationResult = iota
	// VerificationInsecure means no signatures are present and none expected
	VerificationInsecure
	// VerificationBogus means a signature is present but invalid, expired or
	// the chain is broken
	VerificationBogus
	// VerificationIndeterminate means required key material was unavailable
	VerificationIndeterminate
)

func (v VerificationResult) String() string {
	names := [...]string{"SECURE", "INSECURE", "BOGUS", "INDETERMINATE"}

	return names[v]
}

// MarshalText implements `encoding.TextMarshaler`.
func (v VerificationResult) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Verification is a VerificationResult with the failure reason attached
type Verification struct {
	Result VerificationResult `json:"result"`
	Reason string             `json:"reason,omitempty"`
}

// CaseResult is the per-query record accumulated into the report
type CaseResult struct {
	Index      uint                     `json:"index"`
	Query      *Query                   `json:"query"`
	Verdict    Verdict                  `json:"verdict"`
	Divergence *Divergence              `json:"divergence,omitempty"`
	Reason     string                   `json:"reason,omitempty"`
	Attempts   uint                     `json:"attempts"`
	Verify     map[string]*Verification `json:"verify,omitempty"`
	// Responses holds the textual form of each backend's raw response,
	// populated for divergent and inconclusive cases only
	Responses map[string]string `json:"responses,omitempty"`
	RTTMillis map[string]int64  `json:"rttMs,omitempty"`
}
