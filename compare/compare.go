// Package compare decides whether two normalized responses for the same
// query are semantically equivalent under the protocol's permitted
// variation.
package compare

import (
	"fmt"
	"strings"

	"github.com/dnsparity/dnsparity/model"

	"github.com/miekg/dns"
)

const absent = "(absent)"

// Options are the per-run tolerance rules
type Options struct {
	// TTLTolerancePercent is the permitted relative TTL deviation, a
	// resolver may legitimately decrement or cap TTLs
	TTLTolerancePercent float64
	// CompareEDNS includes EDNS presence and payload size negotiation in
	// the comparison. Off by default: absence of a check is exclusion from
	// comparison, not uncertainty.
	CompareEDNS bool
}

// Compare returns the verdict for two normalized responses of the identical
// query. It never returns an inconclusive verdict, transport level outcomes
// are decided by the run controller.
func Compare(a, b *model.NormalizedResponse, opts Options) *model.ComparisonResult {
	// response codes first: two different error codes are a meaningful
	// mismatch as well
	if a.Rcode != b.Rcode {
		return divergent("response_code", dns.RcodeToString[a.Rcode], dns.RcodeToString[b.Rcode])
	}

	if a.Authoritative != b.Authoritative {
		return divergent("authoritative",
			fmt.Sprintf("aa=%t", a.Authoritative), fmt.Sprintf("aa=%t", b.Authoritative))
	}

	sections := []struct {
		name string
		a, b []model.RR
	}{
		{"answer", a.Answer, b.Answer},
		{"authority", a.Authority, b.Authority},
		{"additional", a.Additional, b.Additional},
	}

	for _, section := range sections {
		if d := diffSection(section.name, section.a, section.b, opts.TTLTolerancePercent); d != nil {
			return &model.ComparisonResult{Verdict: model.VerdictDivergent, Divergence: d}
		}
	}

	if opts.CompareEDNS {
		if d := diffEDNS(a.EDNS, b.EDNS); d != nil {
			return &model.ComparisonResult{Verdict: model.VerdictDivergent, Divergence: d}
		}
	}

	return &model.ComparisonResult{Verdict: model.VerdictEquivalent}
}

// diffSection checks two canonical record sets for set equality, where equal
// means same owner, type, class and rdata with the TTL inside the tolerance
// band. The offending record is attached for diagnostics.
func diffSection(name string, as, bs []model.RR, tolerancePercent float64) *model.Divergence {
	consumed := make([]bool, len(bs))

	for i := range as {
		found := false

		for j := range bs {
			if consumed[j] || !as[i].SameData(&bs[j]) {
				continue
			}

			consumed[j] = true
			found = true

			if !ttlWithinTolerance(as[i].TTL, bs[j].TTL, tolerancePercent) {
				return &model.Divergence{
					Field: "ttl",
					A:     fmt.Sprintf("%s ttl=%d", as[i].String(), as[i].TTL),
					B:     fmt.Sprintf("%s ttl=%d", bs[j].String(), bs[j].TTL),
				}
			}

			break
		}

		if !found {
			return &model.Divergence{Field: name, A: as[i].String(), B: absent}
		}
	}

	for j := range bs {
		if !consumed[j] {
			return &model.Divergence{Field: name, A: absent, B: bs[j].String()}
		}
	}

	return nil
}

// ttlWithinTolerance checks the relative TTL deviation against the
// configured band
func ttlWithinTolerance(a, b uint32, tolerancePercent float64) bool {
	if a == b {
		return true
	}

	larger, diff := float64(a), float64(a)-float64(b)
	if b > a {
		larger, diff = float64(b), float64(b)-float64(a)
	}

	return diff <= larger*tolerancePercent/100
}

func diffEDNS(a, b *model.EDNSInfo) *model.Divergence {
	if (a == nil) != (b == nil) {
		return &model.Divergence{Field: "edns", A: ednsString(a), B: ednsString(b)}
	}

	if a == nil {
		return nil
	}

	if a.UDPSize != b.UDPSize || a.Do != b.Do || !equalOptionCodes(a.Options, b.Options) {
		return &model.Divergence{Field: "edns", A: ednsString(a), B: ednsString(b)}
	}

	return nil
}

func equalOptionCodes(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}

	set := make(map[uint16]int, len(a))
	for _, code := range a {
		set[code]++
	}

	for _, code := range b {
		set[code]--
		if set[code] < 0 {
			return false
		}
	}

	return true
}

func ednsString(info *model.EDNSInfo) string {
	if info == nil {
		return absent
	}

	codes := make([]string, 0, len(info.Options))
	for _, code := range info.Options {
		codes = append(codes, fmt.Sprintf("%d", code))
	}

	return fmt.Sprintf("udpsize=%d do=%t options=[%s]", info.UDPSize, info.Do, strings.Join(codes, ","))
}

func divergent(field, a, b string) *model.ComparisonResult {
	return &model.ComparisonResult{
		Verdict:    model.VerdictDivergent,
		Divergence: &model.Divergence{Field: field, A: a, B: b},
	}
}
