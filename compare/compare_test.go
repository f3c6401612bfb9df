package compare

import (
	"github.com/dnsparity/dnsparity/helpertest"
	"github.com/dnsparity/dnsparity/model"
	"github.com/dnsparity/dnsparity/normalize"
	"github.com/dnsparity/dnsparity/util"

	"github.com/miekg/dns"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func responseWith(rcode int, answers ...string) *model.NormalizedResponse {
	msg := util.NewMsgWithQuestion("example.org.", dns.Type(dns.TypeA))
	msg.Response = true
	msg.Rcode = rcode

	for _, a := range answers {
		msg.Answer = append(msg.Answer, helpertest.MustRR(a))
	}

	return normalize.Normalize(&model.RawResponse{Res: msg})
}

var _ = Describe("Compare", func() {
	var opts Options

	BeforeEach(func() {
		opts = Options{TTLTolerancePercent: 5}
	})

	Describe("record sets", func() {
		It("judges identical responses equivalent", func() {
			a := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")
			b := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")

			Expect(Compare(a, b, opts)).Should(helpertest.HaveVerdict(model.VerdictEquivalent))
		})

		It("ignores record order", func() {
			a := responseWith(dns.RcodeSuccess,
				"example.org. 300 IN A 192.0.2.1",
				"example.org. 300 IN A 192.0.2.2")
			b := responseWith(dns.RcodeSuccess,
				"example.org. 300 IN A 192.0.2.2",
				"example.org. 300 IN A 192.0.2.1")

			Expect(Compare(a, b, opts)).Should(helpertest.HaveVerdict(model.VerdictEquivalent))
		})

		It("ignores name casing", func() {
			a := responseWith(dns.RcodeSuccess, "EXAMPLE.org. 300 IN A 192.0.2.1")
			b := responseWith(dns.RcodeSuccess, "example.ORG. 300 IN A 192.0.2.1")

			Expect(Compare(a, b, opts)).Should(helpertest.HaveVerdict(model.VerdictEquivalent))
		})

		It("flags a missing record", func() {
			a := responseWith(dns.RcodeSuccess,
				"example.org. 300 IN A 192.0.2.1",
				"example.org. 300 IN A 192.0.2.2")
			b := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")

			result := Compare(a, b, opts)
			Expect(result).Should(helpertest.HaveVerdict(model.VerdictDivergent))
			Expect(result).Should(helpertest.HaveDivergentField("answer"))
			Expect(result.Divergence.B).Should(Equal("(absent)"))
		})

		It("flags an extra record", func() {
			a := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")
			b := responseWith(dns.RcodeSuccess,
				"example.org. 300 IN A 192.0.2.1",
				"example.org. 300 IN A 192.0.2.9")

			result := Compare(a, b, opts)
			Expect(result).Should(helpertest.HaveVerdict(model.VerdictDivergent))
			Expect(result.Divergence.A).Should(Equal("(absent)"))
		})
	})

	Describe("response codes", func() {
		It("flags different response codes before anything else", func() {
			a := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")
			b := responseWith(dns.RcodeNameError)

			result := Compare(a, b, opts)
			Expect(result).Should(helpertest.HaveVerdict(model.VerdictDivergent))
			Expect(result).Should(helpertest.HaveDivergentField("response_code"))
			Expect(result.Divergence.A).Should(Equal("NOERROR"))
			Expect(result.Divergence.B).Should(Equal("NXDOMAIN"))
		})

		It("treats two equal error codes as equivalent", func() {
			a := responseWith(dns.RcodeRefused)
			b := responseWith(dns.RcodeRefused)

			Expect(Compare(a, b, opts)).Should(helpertest.HaveVerdict(model.VerdictEquivalent))
		})
	})

	Describe("TTL tolerance", func() {
		It("accepts TTL deviation inside the band", func() {
			a := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")
			b := responseWith(dns.RcodeSuccess, "example.org. 290 IN A 192.0.2.1")

			Expect(Compare(a, b, opts)).Should(helpertest.HaveVerdict(model.VerdictEquivalent))
		})

		It("flags TTL deviation outside the band", func() {
			a := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")
			b := responseWith(dns.RcodeSuccess, "example.org. 60 IN A 192.0.2.1")

			result := Compare(a, b, opts)
			Expect(result).Should(helpertest.HaveVerdict(model.VerdictDivergent))
			Expect(result).Should(helpertest.HaveDivergentField("ttl"))
		})

		It("compares TTLs exactly with a zero tolerance", func() {
			opts.TTLTolerancePercent = 0

			a := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")
			b := responseWith(dns.RcodeSuccess, "example.org. 299 IN A 192.0.2.1")

			Expect(Compare(a, b, opts)).Should(helpertest.HaveVerdict(model.VerdictDivergent))
		})
	})

	Describe("authoritative flag", func() {
		It("flags a differing aa bit", func() {
			a := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")
			a.Authoritative = true
			b := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")

			result := Compare(a, b, opts)
			Expect(result).Should(helpertest.HaveVerdict(model.VerdictDivergent))
			Expect(result).Should(helpertest.HaveDivergentField("authoritative"))
		})
	})

	Describe("EDNS", func() {
		var withEdns, withoutEdns *model.NormalizedResponse

		BeforeEach(func() {
			msg := util.NewMsgWithQuestion("example.org.", dns.Type(dns.TypeA))
			msg.Response = true
			msg.SetEdns0(4096, false)
			withEdns = normalize.Normalize(&model.RawResponse{Res: msg})

			plain := util.NewMsgWithQuestion("example.org.", dns.Type(dns.TypeA))
			plain.Response = true
			withoutEdns = normalize.Normalize(&model.RawResponse{Res: plain})
		})

		It("ignores EDNS by default", func() {
			Expect(Compare(withEdns, withoutEdns, opts)).
				Should(helpertest.HaveVerdict(model.VerdictEquivalent))
		})

		It("flags EDNS presence when configured significant", func() {
			opts.CompareEDNS = true

			result := Compare(withEdns, withoutEdns, opts)
			Expect(result).Should(helpertest.HaveVerdict(model.VerdictDivergent))
			Expect(result).Should(helpertest.HaveDivergentField("edns"))
		})
	})

	It("never yields an inconclusive verdict", func() {
		a := responseWith(dns.RcodeServerFailure)
		b := responseWith(dns.RcodeSuccess, "example.org. 300 IN A 192.0.2.1")

		result := Compare(a, b, opts)
		Expect(result.Verdict).Should(BeElementOf(model.VerdictEquivalent, model.VerdictDivergent))
	})
})
