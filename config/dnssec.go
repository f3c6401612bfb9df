package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// DNSSEC is the configuration for DNSSEC verification
type DNSSEC struct {
	Verify bool `yaml:"verify" default:"true"`
	// TrustAnchors are DNSKEY records in zone file format. Empty means the
	// IANA root KSKs.
	TrustAnchors  []string `yaml:"trustAnchors"`
	MaxChainDepth uint     `yaml:"maxChainDepth" default:"10"`
	// Clock skew tolerance in seconds for signature validity windows
	ClockSkewToleranceSec uint `yaml:"clockSkewToleranceSec" default:"3600"`
	// KeyCacheSize bounds the DNSKEY/DS response cache shared by workers
	KeyCacheSize int `yaml:"keyCacheSize" default:"256"`
	// MaxUpstreamQueries bounds the key material queries per verification
	MaxUpstreamQueries uint `yaml:"maxUpstreamQueries" default:"30"`
}

// IsEnabled returns true if DNSSEC verification is enabled
func (c *DNSSEC) IsEnabled() bool {
	return c.Verify
}

// Validate checks that every configured trust anchor parses as a DNSKEY
func (c *DNSSEC) Validate() error {
	var result *multierror.Error

	for _, anchor := range c.TrustAnchors {
		rr, err := dns.NewRR(anchor)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid trust anchor: %w", err))

			continue
		}

		if _, ok := rr.(*dns.DNSKEY); !ok {
			result = multierror.Append(result,
				fmt.Errorf("trust anchor is not a DNSKEY record: '%s'", anchor))
		}
	}

	if c.KeyCacheSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("keyCacheSize must be positive"))
	}

	return result.ErrorOrNil()
}

// LogConfig logs the DNSSEC configuration
func (c *DNSSEC) LogConfig(logger *logrus.Entry) {
	logger.Infof("Verify = %t", c.Verify)

	if c.Verify {
		if len(c.TrustAnchors) > 0 {
			logger.Infof("Custom trust anchors = %d", len(c.TrustAnchors))
		} else {
			logger.Info("Using default root trust anchors")
		}
		logger.Infof("Max chain depth = %d", c.MaxChainDepth)
		logger.Infof("Clock skew tolerance = %d second(s)", c.ClockSkewToleranceSec)
	}
}
