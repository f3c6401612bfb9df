package dnssec

import (
	"context"
	"errors"
	"time"

	"github.com/dnsparity/dnsparity/backend"
	"github.com/dnsparity/dnsparity/config"
	"github.com/dnsparity/dnsparity/helpertest"
	"github.com/dnsparity/dnsparity/model"
	"github.com/dnsparity/dnsparity/normalize"

	"github.com/miekg/dns"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testZone = "example.test."

// failingQuerier simulates an unreachable key material source
type failingQuerier struct{}

func (q *failingQuerier) Query(context.Context, *model.Query) (*model.RawResponse, error) {
	return nil, errors.New("upstream unreachable")
}

func signedResponse(name string, rrs []dns.RR, sigs ...*dns.RRSIG) *model.NormalizedResponse {
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeA)
	msg.Response = true
	msg.Answer = append(msg.Answer, rrs...)

	for _, sig := range sigs {
		msg.Answer = append(msg.Answer, sig)
	}

	return normalize.Normalize(&model.RawResponse{Res: msg})
}

var _ = Describe("Verifier", func() {
	var (
		ctx     context.Context
		zoneKey *helpertest.Signer
		handler *helpertest.ZoneHandler
		querier Querier
		cfg     config.DNSSEC
	)

	newVerifier := func() *Verifier {
		verifier, err := NewVerifier(cfg, querier)
		Expect(err).Should(Succeed())

		return verifier
	}

	BeforeEach(func() {
		var cancel context.CancelFunc

		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		zoneKey = helpertest.NewSigner(testZone)

		handler = helpertest.NewZoneHandler()
		handler.AddRR(zoneKey.Key)
		handler.AddRR(zoneKey.Sign(zoneKey.Key))

		querier = backend.NewLibraryBackend(backend.NewHandlerExchanger(handler))

		cfg = config.DNSSEC{
			Verify:                true,
			TrustAnchors:          []string{zoneKey.Key.String()},
			MaxChainDepth:         10,
			ClockSkewToleranceSec: 3600,
			KeyCacheSize:          16,
			MaxUpstreamQueries:    10,
		}
	})

	It("judges a correctly signed response secure", func() {
		rr := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")
		response := signedResponse("www.example.test.", []dns.RR{rr}, zoneKey.Sign(rr))

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationSecure))
	})

	It("judges an unsigned response insecure", func() {
		rr := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")
		response := signedResponse("www.example.test.", []dns.RR{rr})

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationInsecure))
	})

	It("judges tampered rdata bogus", func() {
		rr := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")
		sig := zoneKey.Sign(rr)

		// the record the backend hands out no longer matches the signature
		tampered := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.66")
		response := signedResponse("www.example.test.", []dns.RR{tampered}, sig)

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationBogus))
		Expect(result.Reason).Should(ContainSubstring("signature verification failed"))
	})

	It("judges an expired signature bogus", func() {
		rr := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")
		sig := zoneKey.SignWithWindow(
			time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour), rr)

		response := signedResponse("www.example.test.", []dns.RR{rr}, sig)

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationBogus))
		Expect(result.Reason).Should(ContainSubstring("validity window"))
	})

	It("tolerates a freshly expired signature inside the clock skew band", func() {
		rr := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")
		sig := zoneKey.SignWithWindow(
			time.Now().Add(-24*time.Hour), time.Now().Add(-30*time.Minute), rr)

		response := signedResponse("www.example.test.", []dns.RR{rr}, sig)

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationSecure))
	})

	It("judges a response signed by an unknown key bogus", func() {
		foreign := helpertest.NewSigner(testZone)
		rr := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")

		response := signedResponse("www.example.test.", []dns.RR{rr}, foreign.Sign(rr))

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationBogus))
		Expect(result.Reason).Should(ContainSubstring("no DNSKEY"))
	})

	It("judges an unsigned delegation insecure", func() {
		subKey := helpertest.NewSigner("sub.example.test.")
		handler.AddRR(subKey.Key)
		handler.AddRR(subKey.Sign(subKey.Key))
		// no DS record for the sub zone exists anywhere

		rr := helpertest.MustRR("www.sub.example.test. 300 IN A 192.0.2.1")
		response := signedResponse("www.sub.example.test.", []dns.RR{rr}, subKey.Sign(rr))

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationInsecure))
		Expect(result.Reason).Should(ContainSubstring("no DS record"))
	})

	It("judges the response indeterminate when key material is unavailable", func() {
		querier = &failingQuerier{}

		rr := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")
		response := signedResponse("www.example.test.", []dns.RR{rr}, zoneKey.Sign(rr))

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationIndeterminate))
	})

	It("flags an unsigned answer RRset in a signed response", func() {
		signed := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")
		unsigned := helpertest.MustRR("www.example.test. 300 IN TXT \"plain\"")

		response := signedResponse("www.example.test.",
			[]dns.RR{signed, unsigned}, zoneKey.Sign(signed))

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationBogus))
		Expect(result.Reason).Should(ContainSubstring("unsigned"))
	})

	It("enforces the upstream query budget", func() {
		cfg.MaxUpstreamQueries = 0

		rr := helpertest.MustRR("www.example.test. 300 IN A 192.0.2.1")
		response := signedResponse("www.example.test.", []dns.RR{rr}, zoneKey.Sign(rr))

		result := newVerifier().Verify(ctx, response)
		Expect(result).Should(helpertest.HaveVerificationResult(model.VerificationIndeterminate))
		Expect(result.Reason).Should(ContainSubstring("budget"))
	})
})

var _ = Describe("TrustAnchorStore", func() {
	It("loads the IANA root anchors by default", func() {
		store, err := NewTrustAnchorStore(nil)
		Expect(err).Should(Succeed())

		Expect(store.HasTrustAnchor(".")).Should(BeTrue())
		Expect(store.GetTrustAnchors(".")).Should(HaveLen(2))
	})

	It("accepts a custom KSK anchor", func() {
		key := helpertest.NewSigner(testZone)

		store, err := NewTrustAnchorStore([]string{key.Key.String()})
		Expect(err).Should(Succeed())

		Expect(store.HasTrustAnchor(testZone)).Should(BeTrue())
		Expect(store.HasTrustAnchor(".")).Should(BeFalse())
		Expect(store.Matches(key.Key)).Should(BeTrue())
	})

	It("rejects an anchor without the SEP flag", func() {
		key := helpertest.NewSigner(testZone)
		key.Key.Flags = dns.ZONE

		_, err := NewTrustAnchorStore([]string{key.Key.String()})
		Expect(err).Should(HaveOccurred())
		Expect(err.Error()).Should(ContainSubstring("SEP"))
	})

	It("rejects a non DNSKEY anchor", func() {
		_, err := NewTrustAnchorStore([]string{"example.test. 300 IN A 192.0.2.1"})
		Expect(err).Should(HaveOccurred())
	})
})
