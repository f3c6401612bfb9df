// Package normalize canonicalizes raw DNS responses into a comparable form.
//
// The protocol does not guarantee record order within a section, permits
// both compressed and uncompressed name encodings and allows resolvers to
// decrement or cap TTLs. Normalization removes exactly this permitted
// variation and nothing else: the result is a pure function of the raw
// message.
package normalize

import (
	"bytes"
	"sort"
	"strings"

	"github.com/dnsparity/dnsparity/model"
	"github.com/dnsparity/dnsparity/util"

	"github.com/miekg/dns"
)

// Normalize canonicalizes a raw response. It is total for every message the
// adapter was able to parse, malformed messages are rejected upstream.
func Normalize(raw *model.RawResponse) *model.NormalizedResponse {
	msg := raw.Res

	normalized := &model.NormalizedResponse{
		Rcode:         msg.Rcode,
		Authoritative: msg.Authoritative,
		Msg:           msg,
	}

	var sigs []*dns.RRSIG

	normalized.Answer, sigs = normalizeSection(msg.Answer)
	normalized.Signatures = append(normalized.Signatures, sigs...)

	normalized.Authority, sigs = normalizeSection(msg.Ns)
	normalized.Signatures = append(normalized.Signatures, sigs...)

	normalized.Additional, sigs = normalizeSection(msg.Extra)
	normalized.Signatures = append(normalized.Signatures, sigs...)

	if opt := util.GetEdns0Record(msg); opt != nil {
		normalized.EDNS = &model.EDNSInfo{
			UDPSize: opt.UDPSize(),
			Do:      opt.Do(),
			Options: util.Edns0OptionCodes(msg),
		}
	}

	return normalized
}

// normalizeSection converts a section into sorted canonical records.
// Signature records are separated out: their validity is evaluated by the
// verifier, two backends signing with different keys will never produce
// byte-equal signatures. The OPT pseudo record is extracted as EDNS info
// and is not part of the additional set.
func normalizeSection(rrs []dns.RR) ([]model.RR, []*dns.RRSIG) {
	records := make([]model.RR, 0, len(rrs))

	var sigs []*dns.RRSIG

	for _, rr := range rrs {
		switch v := rr.(type) {
		case *dns.OPT:
			continue
		case *dns.RRSIG:
			sigs = append(sigs, v)
		default:
			records = append(records, toCanonical(rr))
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return less(&records[i], &records[j])
	})

	return records, sigs
}

// less orders records by (owner name, type, class, canonical rdata bytes)
func less(a, b *model.RR) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}

	if a.Type != b.Type {
		return a.Type < b.Type
	}

	if a.Class != b.Class {
		return a.Class < b.Class
	}

	return bytes.Compare(a.Canonical, b.Canonical) < 0
}

func toCanonical(rr dns.RR) model.RR {
	header := rr.Header()

	// Pack errors cannot occur for records obtained from a successfully
	// parsed message, the canonical key degrades to the textual form then.
	canonical, err := util.PackCanonical(rr)
	if err != nil {
		canonical = []byte(strings.ToLower(rr.String()))
	}

	return model.RR{
		Name:      strings.ToLower(dns.Fqdn(header.Name)),
		Type:      header.Rrtype,
		Class:     header.Class,
		TTL:       util.ClampTTL(header.Ttl),
		Rdata:     rdataString(rr),
		Canonical: canonical,
	}
}

// rdataString extracts the textual record data without the header columns
func rdataString(rr dns.RR) string {
	full := rr.String()
	header := rr.Header().String()

	if strings.HasPrefix(full, header) {
		return strings.TrimSpace(strings.TrimPrefix(full, header))
	}

	return full
}
