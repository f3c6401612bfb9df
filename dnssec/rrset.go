package dnssec

// RRset grouping and RRSIG signature checks per RFC 4034/4035.

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Algorithm strength scores for preventing downgrade attacks
const (
	algorithmStrengthED448           = 100
	algorithmStrengthED25519         = 90
	algorithmStrengthECDSAP384SHA384 = 80
	algorithmStrengthECDSAP256SHA256 = 70
	algorithmStrengthRSASHA512       = 50
	algorithmStrengthRSASHA256       = 40
	algorithmStrengthRSASHA1         = 10
	algorithmStrengthUnsupported     = 0

	// Required DNSKEY protocol field value (RFC 4034 section 2.1.2)
	dnskeyProtocolValue = 3
)

type section int

const (
	sectionAnswer section = iota
	sectionAuthority
)

// rrset is one group of records sharing owner name and type
type rrset struct {
	name    string
	rrtype  uint16
	section section
	records []dns.RR
}

// groupRRsets collects the RRsets of the answer and authority sections.
// OPT and RRSIG records are not data and are skipped, the additional
// section carries unsigned glue and is not verified.
func groupRRsets(msg *dns.Msg) []rrset {
	var sets []rrset

	collect := func(rrs []dns.RR, sec section) {
		index := make(map[string]int)

		for _, rr := range rrs {
			switch rr.(type) {
			case *dns.OPT, *dns.RRSIG:
				continue
			}

			header := rr.Header()
			name := strings.ToLower(dns.Fqdn(header.Name))
			key := fmt.Sprintf("%s/%d", name, header.Rrtype)

			if i, ok := index[key]; ok {
				sets[i].records = append(sets[i].records, rr)

				continue
			}

			index[key] = len(sets)
			sets = append(sets, rrset{
				name:    name,
				rrtype:  header.Rrtype,
				section: sec,
				records: []dns.RR{rr},
			})
		}
	}

	collect(msg.Answer, sectionAnswer)
	collect(msg.Ns, sectionAuthority)

	return sets
}

// findCoveringRRSIGs returns the signatures covering the given RRset
func findCoveringRRSIGs(sigs []*dns.RRSIG, set *rrset) []*dns.RRSIG {
	var covering []*dns.RRSIG

	for _, sig := range sigs {
		if sig.TypeCovered == set.rrtype &&
			strings.EqualFold(dns.Fqdn(sig.Header().Name), set.name) {
			covering = append(covering, sig)
		}
	}

	return covering
}

// getAlgorithmStrength returns a strength score for a DNSSEC algorithm.
// Higher scores indicate stronger algorithms.
func getAlgorithmStrength(alg uint8) int {
	switch alg {
	case dns.ED448:
		return algorithmStrengthED448
	case dns.ED25519:
		return algorithmStrengthED25519
	case dns.ECDSAP384SHA384:
		return algorithmStrengthECDSAP384SHA384
	case dns.ECDSAP256SHA256:
		return algorithmStrengthECDSAP256SHA256
	case dns.RSASHA512:
		return algorithmStrengthRSASHA512
	case dns.RSASHA256:
		return algorithmStrengthRSASHA256
	case dns.RSASHA1, dns.RSASHA1NSEC3SHA1:
		return algorithmStrengthRSASHA1
	default:
		return algorithmStrengthUnsupported
	}
}

// sortRRSIGsByStrength sorts signatures by algorithm strength, strongest
// first, to prevent algorithm downgrade per RFC 6840 section 5.11
func sortRRSIGsByStrength(sigs []*dns.RRSIG) []*dns.RRSIG {
	if len(sigs) <= 1 {
		return sigs
	}

	sorted := make([]*dns.RRSIG, len(sigs))
	copy(sorted, sigs)

	sort.SliceStable(sorted, func(i, j int) bool {
		return getAlgorithmStrength(sorted[i].Algorithm) > getAlgorithmStrength(sorted[j].Algorithm)
	})

	return sorted
}

// findMatchingDNSKEY finds the key matching the signature's key tag and
// algorithm. Keys without the ZONE flag, revoked keys and keys with an
// invalid protocol field must not be used for validation.
func findMatchingDNSKEY(keys []*dns.DNSKEY, keyTag uint16, algorithm uint8) *dns.DNSKEY {
	for _, key := range keys {
		if !isValidZoneKey(key) {
			continue
		}

		if key.KeyTag() == keyTag && key.Algorithm == algorithm {
			return key
		}
	}

	return nil
}

// isValidZoneKey checks the DNSKEY flag and protocol requirements of
// RFC 4034 section 2.1 and RFC 5011 (revoked keys)
func isValidZoneKey(key *dns.DNSKEY) bool {
	return key.Flags&dns.ZONE != 0 &&
		key.Flags&dns.REVOKE == 0 &&
		key.Protocol == dnskeyProtocolValue
}

// checkValidityWindow checks the signature's inception and expiration
// times, widened by the configured clock skew tolerance
func (v *Verifier) checkValidityWindow(sig *dns.RRSIG) error {
	now := time.Now()

	if sig.ValidityPeriod(now) ||
		sig.ValidityPeriod(now.Add(-v.clockSkewTolerance)) ||
		sig.ValidityPeriod(now.Add(v.clockSkewTolerance)) {
		return nil
	}

	return fmt.Errorf("signature for %s outside validity window (inception=%d, expiration=%d)",
		sig.Header().Name, sig.Inception, sig.Expiration)
}

// validateDNSKEY checks a DNSKEY against a parent DS record by recomputing
// the digest (RFC 4035 section 5.2)
func validateDNSKEY(key *dns.DNSKEY, ds *dns.DS) bool {
	if key.Algorithm != ds.Algorithm || key.KeyTag() != ds.KeyTag {
		return false
	}

	computed := key.ToDS(ds.DigestType)
	if computed == nil {
		return false
	}

	return strings.EqualFold(computed.Digest, ds.Digest)
}

// findAndValidateKSK returns the first usable key the parent DS set vouches
// for
func findAndValidateKSK(keys []*dns.DNSKEY, dsRecords []dns.RR) *dns.DNSKEY {
	for _, key := range keys {
		if !isValidZoneKey(key) {
			continue
		}

		for _, rr := range dsRecords {
			ds, ok := rr.(*dns.DS)
			if !ok {
				continue
			}

			if validateDNSKEY(key, ds) {
				return key
			}
		}
	}

	return nil
}
