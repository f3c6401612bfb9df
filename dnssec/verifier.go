// Package dnssec verifies chains of trust per RFC 4033, 4034 and 4035.
//
// Verification walks from the signatures of a response up to the configured
// trust anchors, fetching DNSKEY and DS records through the same backend
// that produced the response. Each backend is judged on its own key
// material, two backends may legitimately disagree on whether a zone is
// secure.
package dnssec

import (
	"context"
	"fmt"
	"time"

	"github.com/dnsparity/dnsparity/config"
	"github.com/dnsparity/dnsparity/log"
	"github.com/dnsparity/dnsparity/model"

	lru "github.com/hashicorp/golang-lru"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Querier is the minimal query path the verifier needs for fetching key
// material. Both backend variants satisfy it.
type Querier interface {
	Query(ctx context.Context, query *model.Query) (*model.RawResponse, error)
}

// Verifier evaluates the DNSSEC chain of trust of responses. It is safe for
// concurrent use, the key material cache is shared across workers.
type Verifier struct {
	trustAnchors       *TrustAnchorStore
	querier            Querier
	keyCache           *lru.Cache
	maxChainDepth      uint
	maxUpstreamQueries uint
	clockSkewTolerance time.Duration
	logger             *logrus.Entry
}

// NewVerifier creates a verifier fetching key material through the given
// querier
func NewVerifier(cfg config.DNSSEC, querier Querier) (*Verifier, error) {
	trustAnchors, err := NewTrustAnchorStore(cfg.TrustAnchors)
	if err != nil {
		return nil, err
	}

	keyCache, err := lru.New(cfg.KeyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("can't create key cache: %w", err)
	}

	return &Verifier{
		trustAnchors:       trustAnchors,
		querier:            querier,
		keyCache:           keyCache,
		maxChainDepth:      cfg.MaxChainDepth,
		maxUpstreamQueries: cfg.MaxUpstreamQueries,
		clockSkewTolerance: time.Duration(cfg.ClockSkewToleranceSec) * time.Second,
		logger:             log.PrefixedLog("dnssec"),
	}, nil
}

// verifyState is the per-verification bookkeeping: the remaining upstream
// query budget and the zones already walked. A fresh state is created for
// every Verify call, so one verification cannot starve another.
type verifyState struct {
	budget      int
	zoneResults map[string]*model.Verification
}

// Verify evaluates the chain of trust for a normalized response.
//
// A response without any signature is insecure, not bogus: unsigned zones
// are valid. Once signatures are present, every answer RRset must validate
// up to a trust anchor for the response to be secure.
func (v *Verifier) Verify(ctx context.Context, response *model.NormalizedResponse) *model.Verification {
	if len(response.Signatures) == 0 {
		return &model.Verification{
			Result: model.VerificationInsecure,
			Reason: "response carries no signatures",
		}
	}

	st := &verifyState{
		budget:      int(v.maxUpstreamQueries),
		zoneResults: make(map[string]*model.Verification),
	}

	overall := &model.Verification{Result: model.VerificationSecure}
	evaluated := 0

	for _, set := range groupRRsets(response.Msg) {
		verification := v.verifySignedRRset(ctx, st, set, response.Signatures, v.maxChainDepth)
		if verification == nil {
			// an unsigned answer RRset in an otherwise signed response is a
			// broken signing chain, unsigned authority data (e.g. the
			// delegation NS set) is normal
			if set.section != sectionAnswer {
				continue
			}

			verification = &model.Verification{
				Result: model.VerificationBogus,
				Reason: fmt.Sprintf("answer RRset %s/%s is unsigned",
					set.name, dns.TypeToString[set.rrtype]),
			}
		}

		evaluated++

		if precedence(verification.Result) > precedence(overall.Result) {
			overall = verification
		}
	}

	if evaluated == 0 {
		return &model.Verification{
			Result: model.VerificationInsecure,
			Reason: "no signed RRset to verify",
		}
	}

	v.logger.WithFields(logrus.Fields{
		"result":  overall.Result.String(),
		"rrsets":  evaluated,
		"queries": int(v.maxUpstreamQueries) - st.budget,
	}).Trace("verification finished")

	return overall
}

// verifySignedRRset verifies one RRset against its covering signatures and
// walks the signer's chain of trust. Returns nil if no signature covers the
// set, the caller decides whether that is acceptable.
func (v *Verifier) verifySignedRRset(ctx context.Context, st *verifyState,
	set rrset, sigs []*dns.RRSIG, depth uint,
) *model.Verification {
	covering := findCoveringRRSIGs(sigs, &set)
	if len(covering) == 0 {
		return nil
	}

	var (
		lastReason       string
		sawIndeterminate bool
	)

	for _, sig := range sortRRSIGsByStrength(covering) {
		if err := v.checkValidityWindow(sig); err != nil {
			lastReason = err.Error()

			continue
		}

		keys, _, err := v.fetchDNSKEY(ctx, st, sig.SignerName)
		if err != nil {
			sawIndeterminate = true
			lastReason = err.Error()

			continue
		}

		key := findMatchingDNSKEY(keys, sig.KeyTag, sig.Algorithm)
		if key == nil {
			lastReason = fmt.Sprintf("no DNSKEY with key tag %d and algorithm %d in zone %s",
				sig.KeyTag, sig.Algorithm, sig.SignerName)

			continue
		}

		if err := sig.Verify(key, set.records); err != nil {
			lastReason = fmt.Sprintf("signature verification failed for %s/%s: %v",
				set.name, dns.TypeToString[set.rrtype], err)

			continue
		}

		return v.verifyZone(ctx, st, sig.SignerName, depth)
	}

	if sawIndeterminate {
		return &model.Verification{Result: model.VerificationIndeterminate, Reason: lastReason}
	}

	return &model.Verification{Result: model.VerificationBogus, Reason: lastReason}
}

// precedence orders verification results by severity, the worst RRset
// result determines the response result
func precedence(result model.VerificationResult) int {
	switch result {
	case model.VerificationBogus:
		return 3
	case model.VerificationIndeterminate:
		return 2
	case model.VerificationInsecure:
		return 1
	default:
		return 0
	}
}
