package util

import (
	"github.com/miekg/dns"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func mustRR(s string) dns.RR {
	rr, err := dns.NewRR(s)
	Expect(err).Should(Succeed())

	return rr
}

var _ = Describe("DNS helpers", func() {
	Describe("CanonicalizeRR", func() {
		It("lowercases the owner name", func() {
			rr := mustRR("WWW.Example.ORG. 300 IN A 192.0.2.1")

			c := CanonicalizeRR(rr)
			Expect(c.Header().Name).Should(Equal("www.example.org."))
		})

		It("lowercases embedded names of name-bearing types", func() {
			rr := mustRR("example.org. 300 IN MX 10 Mail.EXAMPLE.org.")

			c := CanonicalizeRR(rr)
			Expect(c.(*dns.MX).Mx).Should(Equal("mail.example.org."))
		})

		It("does not modify the original record", func() {
			rr := mustRR("WWW.example.org. 300 IN A 192.0.2.1")

			_ = CanonicalizeRR(rr)
			Expect(rr.Header().Name).Should(Equal("WWW.example.org."))
		})
	})

	Describe("PackCanonical", func() {
		It("yields identical bytes for case variants of the same record", func() {
			a := mustRR("www.EXAMPLE.org. 300 IN NS NS1.example.org.")
			b := mustRR("WWW.example.ORG. 300 IN NS ns1.EXAMPLE.org.")

			packedA, err := PackCanonical(a)
			Expect(err).Should(Succeed())

			packedB, err := PackCanonical(b)
			Expect(err).Should(Succeed())

			Expect(packedA).Should(Equal(packedB))
		})

		It("distinguishes records with different rdata", func() {
			a := mustRR("www.example.org. 300 IN A 192.0.2.1")
			b := mustRR("www.example.org. 300 IN A 192.0.2.2")

			packedA, _ := PackCanonical(a)
			packedB, _ := PackCanonical(b)

			Expect(packedA).ShouldNot(Equal(packedB))
		})
	})

	Describe("ClampTTL", func() {
		It("keeps TTLs inside the protocol range", func() {
			Expect(ClampTTL(300)).Should(Equal(uint32(300)))
			Expect(ClampTTL(MaxTTL)).Should(Equal(MaxTTL))
		})

		It("treats TTLs with the high bit set as zero", func() {
			Expect(ClampTTL(MaxTTL + 1)).Should(Equal(uint32(0)))
		})
	})

	Describe("AnswerToString", func() {
		It("formats the common record types", func() {
			answer := []dns.RR{
				mustRR("example.org. 300 IN A 192.0.2.1"),
				mustRR("example.org. 300 IN CNAME alias.example.org."),
			}

			Expect(AnswerToString(answer)).Should(Equal("A (192.0.2.1), CNAME (alias.example.org.)"))
		})
	})

	Describe("Edns0OptionCodes", func() {
		It("returns nil without an OPT record", func() {
			msg := NewMsgWithQuestion("example.org.", dns.Type(dns.TypeA))

			Expect(Edns0OptionCodes(msg)).Should(BeNil())
		})

		It("lists the option codes in wire order", func() {
			msg := NewMsgWithQuestion("example.org.", dns.Type(dns.TypeA))
			msg.SetEdns0(4096, false)

			opt := GetEdns0Record(msg)
			opt.Option = append(opt.Option,
				&dns.EDNS0_NSID{Code: dns.EDNS0NSID},
				&dns.EDNS0_COOKIE{Code: dns.EDNS0COOKIE},
			)

			Expect(Edns0OptionCodes(msg)).Should(Equal([]uint16{dns.EDNS0NSID, dns.EDNS0COOKIE}))
		})
	})
})
