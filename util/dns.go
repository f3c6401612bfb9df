package util

import (
	"strings"

	"github.com/miekg/dns"
)

// MaxTTL is the largest TTL the protocol permits (RFC 2181, 2^31-1)
const MaxTTL = uint32(1<<31 - 1)

// NewMsgWithQuestion creates new DNS message with question
func NewMsgWithQuestion(question string, qType dns.Type) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(question), uint16(qType))

	return msg
}

// AnswerToString creates a user-friendly representation of an answer
func AnswerToString(answer []dns.RR) string {
	answers := make([]string, len(answer))

	for i, record := range answer {
		switch v := record.(type) {
		case *dns.A:
			answers[i] = "A (" + v.A.String() + ")"
		case *dns.AAAA:
			answers[i] = "AAAA (" + v.AAAA.String() + ")"
		case *dns.CNAME:
			answers[i] = "CNAME (" + v.Target + ")"
		case *dns.PTR:
			answers[i] = "PTR (" + v.Ptr + ")"
		default:
			answers[i] = record.String()
		}
	}

	return strings.Join(answers, ", ")
}

// QuestionToString creates a user-friendly representation of a question
func QuestionToString(questions []dns.Question) string {
	result := make([]string, len(questions))
	for i, question := range questions {
		result[i] = dns.TypeToString[question.Qtype] + " (" + question.Name + ")"
	}

	return strings.Join(result, ", ")
}

// CanonicalizeRR returns a copy of the record in canonical form per
// RFC 4034 section 6.2: owner name lowercased and, for the name-bearing
// types, the embedded domain names lowercased as well.
func CanonicalizeRR(rr dns.RR) dns.RR {
	c := dns.Copy(rr)
	c.Header().Name = strings.ToLower(dns.Fqdn(c.Header().Name))

	switch v := c.(type) {
	case *dns.NS:
		v.Ns = strings.ToLower(v.Ns)
	case *dns.CNAME:
		v.Target = strings.ToLower(v.Target)
	case *dns.PTR:
		v.Ptr = strings.ToLower(v.Ptr)
	case *dns.MX:
		v.Mx = strings.ToLower(v.Mx)
	case *dns.SOA:
		v.Ns = strings.ToLower(v.Ns)
		v.Mbox = strings.ToLower(v.Mbox)
	case *dns.SRV:
		v.Target = strings.ToLower(v.Target)
	case *dns.NAPTR:
		v.Replacement = strings.ToLower(v.Replacement)
	}

	return c
}

// PackCanonical packs a record in canonical form without name compression.
// Two protocol-equivalent encodings of the same record yield identical bytes.
func PackCanonical(rr dns.RR) ([]byte, error) {
	c := CanonicalizeRR(rr)

	buf := make([]byte, dns.MaxMsgSize)

	off, err := dns.PackRR(c, buf, 0, nil, false)
	if err != nil {
		return nil, err
	}

	return buf[:off], nil
}

// ClampTTL brings a TTL into the protocol range. Values with the high bit
// set are treated as zero per RFC 2181 section 8.
func ClampTTL(ttl uint32) uint32 {
	if ttl > MaxTTL {
		return 0
	}

	return ttl
}
