package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// requiredTypes are the record types every coverage spec must exercise:
// address, name server, mail exchange, text and key records
// nolint:gochecknoglobals
var requiredTypes = []dns.Type{
	dns.Type(dns.TypeA),
	dns.Type(dns.TypeNS),
	dns.Type(dns.TypeMX),
	dns.Type(dns.TypeTXT),
	dns.Type(dns.TypeDNSKEY),
}

// Coverage describes which queries the corpus generator produces
type Coverage struct {
	// Types lists the record types to cover. Empty means the default set.
	Types QTypeSet `yaml:"types"`
	// Zones are the base names queries are generated under
	Zones []string `yaml:"zones"`
	// Count is the corpus size, 0 produces an unbounded fuzz sequence
	Count uint `yaml:"count" default:"100"`
	// BoundaryNames enables name length edge cases (63 octet label,
	// 255 octet name, empty label)
	BoundaryNames bool `yaml:"boundaryNames" default:"true"`
	// WildcardNames enables names expected to match wildcard records
	WildcardNames bool `yaml:"wildcardNames" default:"true"`
	// MalformedNames enables intentionally invalid names which must yield
	// error responses, not crashes
	MalformedNames bool `yaml:"malformedNames" default:"true"`
	// EDNSSignificant makes the comparator treat EDNS negotiation
	// differences as divergence
	EDNSSignificant bool `yaml:"ednsSignificant" default:"false"`
}

// DefaultQTypes returns the coverage types used when none are configured
func DefaultQTypes() QTypeSet {
	return NewQTypeSet(
		dns.Type(dns.TypeA),
		dns.Type(dns.TypeAAAA),
		dns.Type(dns.TypeNS),
		dns.Type(dns.TypeMX),
		dns.Type(dns.TypeTXT),
		dns.Type(dns.TypeSOA),
		dns.Type(dns.TypeDNSKEY),
	)
}

// Validate checks the coverage spec and applies the type/zone defaults
func (c *Coverage) Validate() error {
	var result *multierror.Error

	if len(c.Types) == 0 {
		c.Types = DefaultQTypes()
	}

	for _, t := range requiredTypes {
		if !c.Types.Contains(t) {
			result = multierror.Append(result,
				fmt.Errorf("coverage types must include %s", t.String()))
		}
	}

	if len(c.Zones) == 0 {
		c.Zones = []string{"example.test."}
	}

	for i, zone := range c.Zones {
		if _, ok := dns.IsDomainName(zone); !ok {
			result = multierror.Append(result, fmt.Errorf("invalid coverage zone '%s'", zone))

			continue
		}

		c.Zones[i] = dns.Fqdn(zone)
	}

	return result.ErrorOrNil()
}

// LogConfig logs the coverage configuration
func (c *Coverage) LogConfig(logger *logrus.Entry) {
	types := make([]string, 0, len(c.Types))
	for _, t := range c.Types.Types() {
		types = append(types, t.String())
	}

	logger.Infof("Types = %s", strings.Join(types, ", "))
	logger.Infof("Zones = %s", strings.Join(c.Zones, ", "))
	logger.Infof("Count = %d", c.Count)
	logger.Infof("Boundary names = %t", c.BoundaryNames)
	logger.Infof("Wildcard names = %t", c.WildcardNames)
	logger.Infof("Malformed names = %t", c.MalformedNames)
	logger.Infof("EDNS significant = %t", c.EDNSSignificant)
}
