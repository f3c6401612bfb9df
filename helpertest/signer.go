package helpertest

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Signer is a generated zone signing key with its private half, for building
// signed test zones. For test fixtures only.
type Signer struct {
	Key *dns.DNSKEY

	priv *ecdsa.PrivateKey
}

// NewSigner generates an ECDSA P-256 KSK for the given zone
func NewSigner(zone string) *Signer {
	key := &dns.DNSKEY{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(zone),
			Rrtype: dns.TypeDNSKEY,
			Class:  dns.ClassINET,
			Ttl:    3600,
		},
		Flags:     dns.ZONE | dns.SEP,
		Protocol:  3,
		Algorithm: dns.ECDSAP256SHA256,
	}

	priv, err := key.Generate(256)
	if err != nil {
		panic(fmt.Sprintf("can't generate signing key for %s: %v", zone, err))
	}

	return &Signer{Key: key, priv: priv.(*ecdsa.PrivateKey)}
}

// Sign creates a currently valid signature over the given RRset
func (s *Signer) Sign(rrs ...dns.RR) *dns.RRSIG {
	return s.SignWithWindow(time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour), rrs...)
}

// SignWithWindow creates a signature with an explicit validity window
func (s *Signer) SignWithWindow(inception, expiration time.Time, rrs ...dns.RR) *dns.RRSIG {
	header := rrs[0].Header()

	sig := &dns.RRSIG{
		Hdr: dns.RR_Header{
			Name:   header.Name,
			Rrtype: dns.TypeRRSIG,
			Class:  dns.ClassINET,
			Ttl:    header.Ttl,
		},
		TypeCovered: header.Rrtype,
		Algorithm:   s.Key.Algorithm,
		Labels:      uint8(dns.CountLabel(header.Name)),
		OrigTtl:     header.Ttl,
		Expiration:  uint32(expiration.Unix()),
		Inception:   uint32(inception.Unix()),
		KeyTag:      s.Key.KeyTag(),
		SignerName:  s.Key.Header().Name,
	}

	if err := sig.Sign(s.priv, rrs); err != nil {
		panic(fmt.Sprintf("can't sign RRset %s: %v", header.Name, err))
	}

	return sig
}
