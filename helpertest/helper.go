// Package helpertest provides shared test fixtures and gomega matchers
package helpertest

import (
	"fmt"

	"github.com/dnsparity/dnsparity/model"

	"github.com/miekg/dns"
	"github.com/onsi/gomega/gcustom"
	"github.com/onsi/gomega/types"
)

const (
	A      = dns.Type(dns.TypeA)
	AAAA   = dns.Type(dns.TypeAAAA)
	CNAME  = dns.Type(dns.TypeCNAME)
	MX     = dns.Type(dns.TypeMX)
	NS     = dns.Type(dns.TypeNS)
	PTR    = dns.Type(dns.TypePTR)
	SOA    = dns.Type(dns.TypeSOA)
	TXT    = dns.Type(dns.TypeTXT)
	DS     = dns.Type(dns.TypeDS)
	DNSKEY = dns.Type(dns.TypeDNSKEY)
)

// MustRR parses a resource record in zone file format, panicking on error.
// For test fixtures only.
func MustRR(s string) dns.RR {
	rr, err := dns.NewRR(s)
	if err != nil {
		panic(fmt.Sprintf("can't parse RR %q: %v", s, err))
	}

	return rr
}

// HaveVerdict succeeds if the comparison or case result has the given
// verdict
func HaveVerdict(verdict model.Verdict) types.GomegaMatcher {
	return gcustom.MakeMatcher(func(actual any) (bool, error) {
		switch v := actual.(type) {
		case *model.ComparisonResult:
			return v.Verdict == verdict, nil
		case *model.CaseResult:
			return v.Verdict == verdict, nil
		default:
			return false, fmt.Errorf("HaveVerdict does not support %T", actual)
		}
	}).WithTemplate(
		"Expected:\n{{.Actual}}\n{{.To}} have verdict:\n{{format .Data 1}}",
		verdict.String(),
	)
}

// HaveDivergentField succeeds if the result is divergent on the given field
func HaveDivergentField(field string) types.GomegaMatcher {
	return gcustom.MakeMatcher(func(actual any) (bool, error) {
		var divergence *model.Divergence

		switch v := actual.(type) {
		case *model.ComparisonResult:
			divergence = v.Divergence
		case *model.CaseResult:
			divergence = v.Divergence
		default:
			return false, fmt.Errorf("HaveDivergentField does not support %T", actual)
		}

		return divergence != nil && divergence.Field == field, nil
	}).WithTemplate(
		"Expected:\n{{.Actual}}\n{{.To}} diverge on field:\n{{format .Data 1}}",
		field,
	)
}

// HaveRcode succeeds if the normalized response has the given response code
func HaveRcode(code int) types.GomegaMatcher {
	return gcustom.MakeMatcher(func(actual any) (bool, error) {
		switch v := actual.(type) {
		case *model.NormalizedResponse:
			return v.Rcode == code, nil
		case *dns.Msg:
			return v.Rcode == code, nil
		default:
			return false, fmt.Errorf("HaveRcode does not support %T", actual)
		}
	}).WithTemplate(
		"Expected:\n{{.Actual}}\n{{.To}} have RCode:\n{{format .Data 1}}",
		fmt.Sprintf("%d (%s)", code, dns.RcodeToString[code]),
	)
}

// HaveVerificationResult succeeds if the verification reached the given
// result
func HaveVerificationResult(result model.VerificationResult) types.GomegaMatcher {
	return gcustom.MakeMatcher(func(v *model.Verification) (bool, error) {
		return v.Result == result, nil
	}).WithTemplate(
		"Expected:\n{{.Actual}}\n{{.To}} have verification result:\n{{format .Data 1}}",
		result.String(),
	)
}
