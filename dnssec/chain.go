package dnssec

// Chain of trust walk: zone DNSKEY validation against trust anchors or
// parent DS records per RFC 4035 section 5.

import (
	"context"
	"fmt"
	"strings"

	"github.com/dnsparity/dnsparity/model"

	"github.com/miekg/dns"
)

// verifyZone establishes whether the zone's DNSKEY RRset chains up to a
// trust anchor. Results are memoized per verification, a response signed by
// one zone walks the chain once regardless of how many RRsets it contains.
func (v *Verifier) verifyZone(ctx context.Context, st *verifyState, zone string, depth uint) *model.Verification {
	zone = strings.ToLower(dns.Fqdn(zone))

	if cached, ok := st.zoneResults[zone]; ok {
		return cached
	}

	result := v.verifyZoneUncached(ctx, st, zone, depth)
	st.zoneResults[zone] = result

	return result
}

func (v *Verifier) verifyZoneUncached(ctx context.Context, st *verifyState,
	zone string, depth uint,
) *model.Verification {
	if depth == 0 {
		return bogus(fmt.Sprintf("chain of trust exceeds maximum depth %d at zone %s",
			v.maxChainDepth, zone))
	}

	keys, keySigs, err := v.fetchDNSKEY(ctx, st, zone)
	if err != nil {
		return indeterminate(err.Error())
	}

	if len(keys) == 0 {
		return bogus(fmt.Sprintf("zone %s has no DNSKEY records", zone))
	}

	// anchored zone: the walk ends here
	if v.trustAnchors.HasTrustAnchor(zone) {
		ksk := v.findAnchoredKSK(keys)
		if ksk == nil {
			return bogus(fmt.Sprintf("no DNSKEY in zone %s matches a trust anchor", zone))
		}

		if err := v.verifyDNSKEYRRset(keys, keySigs, ksk); err != nil {
			return bogus(err.Error())
		}

		return secure()
	}

	// delegated zone: the parent's DS set must vouch for a KSK
	dsSet, dsSigs, err := v.fetchDS(ctx, st, zone)
	if err != nil {
		return indeterminate(err.Error())
	}

	if len(dsSet.records) == 0 {
		return insecure(fmt.Sprintf("no DS record for zone %s, delegation is unsigned", zone))
	}

	ksk := findAndValidateKSK(keys, dsSet.records)
	if ksk == nil {
		return bogus(fmt.Sprintf("no DNSKEY in zone %s matches a parent DS record", zone))
	}

	if err := v.verifyDNSKEYRRset(keys, keySigs, ksk); err != nil {
		return bogus(err.Error())
	}

	// the DS RRset lives in the parent zone and must itself validate up to
	// an anchor
	parent := v.verifySignedRRset(ctx, st, dsSet, dsSigs, depth-1)
	if parent == nil {
		return bogus(fmt.Sprintf("DS RRset for zone %s is unsigned", zone))
	}

	if parent.Result != model.VerificationSecure {
		return parent
	}

	return secure()
}

// findAnchoredKSK returns the first usable key equal to a configured trust
// anchor
func (v *Verifier) findAnchoredKSK(keys []*dns.DNSKEY) *dns.DNSKEY {
	for _, key := range keys {
		if !isValidZoneKey(key) {
			continue
		}

		if v.trustAnchors.Matches(key) {
			return key
		}
	}

	return nil
}

// verifyDNSKEYRRset checks the self signature of the DNSKEY RRset made by
// the given KSK (RFC 4035 section 5.2)
func (v *Verifier) verifyDNSKEYRRset(keys []*dns.DNSKEY, sigs []*dns.RRSIG, ksk *dns.DNSKEY) error {
	rrs := make([]dns.RR, len(keys))
	for i, key := range keys {
		rrs[i] = key
	}

	for _, sig := range sigs {
		if sig.KeyTag != ksk.KeyTag() || sig.Algorithm != ksk.Algorithm {
			continue
		}

		if err := v.checkValidityWindow(sig); err != nil {
			continue
		}

		if err := sig.Verify(ksk, rrs); err == nil {
			return nil
		}
	}

	return fmt.Errorf("DNSKEY RRset of zone %s is not signed by KSK with key tag %d",
		ksk.Header().Name, ksk.KeyTag())
}

// fetchDNSKEY queries the zone's DNSKEY RRset and its covering signatures
func (v *Verifier) fetchDNSKEY(ctx context.Context, st *verifyState,
	zone string,
) ([]*dns.DNSKEY, []*dns.RRSIG, error) {
	msg, err := v.queryRecords(ctx, st, zone, dns.TypeDNSKEY)
	if err != nil {
		return nil, nil, err
	}

	var (
		keys []*dns.DNSKEY
		sigs []*dns.RRSIG
	)

	for _, rr := range msg.Answer {
		switch typed := rr.(type) {
		case *dns.DNSKEY:
			keys = append(keys, typed)
		case *dns.RRSIG:
			if typed.TypeCovered == dns.TypeDNSKEY {
				sigs = append(sigs, typed)
			}
		}
	}

	return keys, sigs, nil
}

// fetchDS queries the DS RRset for a zone. An empty set with a clean rcode
// means the parent published no DS, the delegation is unsigned.
func (v *Verifier) fetchDS(ctx context.Context, st *verifyState,
	zone string,
) (rrset, []*dns.RRSIG, error) {
	msg, err := v.queryRecords(ctx, st, zone, dns.TypeDS)
	if err != nil {
		return rrset{}, nil, err
	}

	set := rrset{
		name:    strings.ToLower(dns.Fqdn(zone)),
		rrtype:  dns.TypeDS,
		section: sectionAnswer,
	}

	var sigs []*dns.RRSIG

	for _, rr := range msg.Answer {
		switch typed := rr.(type) {
		case *dns.DS:
			if strings.EqualFold(dns.Fqdn(typed.Header().Name), set.name) {
				set.records = append(set.records, typed)
			}
		case *dns.RRSIG:
			if typed.TypeCovered == dns.TypeDS &&
				strings.EqualFold(dns.Fqdn(typed.Header().Name), set.name) {
				sigs = append(sigs, typed)
			}
		}
	}

	return set, sigs, nil
}

// queryRecords fetches key material through the backend, consulting the
// shared LRU cache first. The per-verification budget bounds the number of
// real upstream queries, deep or cyclic chains fail indeterminate instead
// of looping.
func (v *Verifier) queryRecords(ctx context.Context, st *verifyState,
	name string, qtype uint16,
) (*dns.Msg, error) {
	cacheKey := fmt.Sprintf("%d:%s", qtype, dns.CanonicalName(name))

	if cached, ok := v.keyCache.Get(cacheKey); ok {
		return cached.(*dns.Msg), nil
	}

	if st.budget <= 0 {
		return nil, fmt.Errorf("upstream query budget exhausted (max %d per verification)",
			v.maxUpstreamQueries)
	}

	st.budget--

	query := &model.Query{
		Name:             dns.Fqdn(name),
		Type:             dns.Type(qtype),
		Class:            dns.Class(dns.ClassINET),
		DNSSEC:           true,
		RecursionDesired: true,
	}

	raw, err := v.querier.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("key material query for %s/%s failed: %w",
			name, dns.TypeToString[qtype], err)
	}

	v.keyCache.Add(cacheKey, raw.Res)

	return raw.Res, nil
}

func secure() *model.Verification {
	return &model.Verification{Result: model.VerificationSecure}
}

func insecure(reason string) *model.Verification {
	return &model.Verification{Result: model.VerificationInsecure, Reason: reason}
}

func bogus(reason string) *model.Verification {
	return &model.Verification{Result: model.VerificationBogus, Reason: reason}
}

func indeterminate(reason string) *model.Verification {
	return &model.Verification{Result: model.VerificationIndeterminate, Reason: reason}
}
