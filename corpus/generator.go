// Package corpus generates the deterministic query corpus of a test run.
package corpus

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/dnsparity/dnsparity/config"
	"github.com/dnsparity/dnsparity/log"
	"github.com/dnsparity/dnsparity/model"

	"github.com/miekg/dns"
	"github.com/mroth/weightedrand"
	"github.com/sirupsen/logrus"
)

// shape classifies the kind of owner name a query gets
type shape int

const (
	shapeStandard shape = iota
	shapeBoundary
	shapeWildcard
	shapeMalformed
)

const (
	maxLabelLen = 63
	maxNameLen  = 255
	labelChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// malformedLabels are packable but protocol-questionable labels. Both
// backends must answer them with an error code, never crash. Wire-level
// malformations which cannot be expressed as a name (empty label, truncated
// compression pointers) are exercised with hand-crafted bytes in the
// adapter and normalizer tests instead, since the library backend can only
// send what its message builder can encode.
// nolint:gochecknoglobals
var malformedLabels = []string{
	"bad!label",
	"sp ace",
	"under_score_",
	"semi;colon",
	"at@sign",
}

// Generator produces a deterministic, restartable sequence of queries for a
// fixed seed. Generation itself never fails, unsupported coverage options
// are rejected when the generator is built.
type Generator struct {
	cov     config.Coverage
	seed    uint64
	rnd     *rand.Rand
	chooser *weightedrand.Chooser
	types   []dns.Type
	idx     uint
	logger  *logrus.Entry
}

// NewGenerator builds a generator for the given coverage spec and seed
func NewGenerator(cov config.Coverage, seed uint64) (*Generator, error) {
	if len(cov.Types) == 0 {
		return nil, fmt.Errorf("coverage spec contains no record types")
	}

	if len(cov.Zones) == 0 {
		return nil, fmt.Errorf("coverage spec contains no zones")
	}

	choices := []weightedrand.Choice{
		{Item: shapeStandard, Weight: 6},
	}

	if cov.BoundaryNames {
		choices = append(choices, weightedrand.Choice{Item: shapeBoundary, Weight: 2})
	}

	if cov.WildcardNames {
		choices = append(choices, weightedrand.Choice{Item: shapeWildcard, Weight: 1})
	}

	if cov.MalformedNames {
		choices = append(choices, weightedrand.Choice{Item: shapeMalformed, Weight: 1})
	}

	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return nil, fmt.Errorf("can't build corpus shape chooser: %w", err)
	}

	g := &Generator{
		cov:     cov,
		seed:    seed,
		chooser: chooser,
		types:   cov.Types.Types(),
		logger:  log.PrefixedLog("corpus"),
	}

	g.Reset()

	return g, nil
}

// Reset restarts the sequence from the beginning
func (g *Generator) Reset() {
	g.rnd = rand.New(rand.NewSource(int64(g.seed))) // nolint:gosec
	g.idx = 0
}

// Size returns the configured corpus size, 0 means unbounded
func (g *Generator) Size() uint {
	return g.cov.Count
}

// Done reports whether the finite corpus is exhausted
func (g *Generator) Done() bool {
	return g.cov.Count > 0 && g.idx >= g.cov.Count
}

// Next produces the next query of the sequence
func (g *Generator) Next() *model.Query {
	g.idx++

	zone := g.cov.Zones[g.rnd.Intn(len(g.cov.Zones))]
	qType := g.types[g.rnd.Intn(len(g.types))]

	query := &model.Query{
		Type:             qType,
		Class:            dns.Class(dns.ClassINET),
		DNSSEC:           g.rnd.Intn(2) == 0,
		RecursionDesired: g.rnd.Intn(8) != 0,
	}

	switch g.chooser.PickSource(g.rnd).(shape) {
	case shapeStandard:
		query.Name = g.standardName(zone)
	case shapeBoundary:
		query.Name = g.boundaryName(zone)
	case shapeWildcard:
		query.Name = g.randLabel(1+g.rnd.Intn(8)) + ".wild." + zone
	case shapeMalformed:
		query.Name = malformedLabels[g.rnd.Intn(len(malformedLabels))] + "." + zone
		query.ExpectError = true
	}

	query.Name = dns.Fqdn(query.Name)

	g.logger.Tracef("generated query #%d: %s", g.idx, query)

	return query
}

// standardName builds one to three random labels under the zone, with
// occasional mixed casing since name comparison is case-insensitive
func (g *Generator) standardName(zone string) string {
	labelCount := 1 + g.rnd.Intn(3)
	labels := make([]string, 0, labelCount+1)

	for i := 0; i < labelCount; i++ {
		labels = append(labels, g.randLabel(1+g.rnd.Intn(12)))
	}

	labels = append(labels, zone)
	name := strings.Join(labels, ".")

	if g.rnd.Intn(4) == 0 {
		name = mixCase(name, g.rnd)
	}

	return name
}

// boundaryName builds a name at one of the protocol's length limits
func (g *Generator) boundaryName(zone string) string {
	switch g.rnd.Intn(3) {
	case 0:
		// single label at the 63 octet limit
		return g.randLabel(maxLabelLen) + "." + zone
	case 1:
		// total name length driven to the 255 octet limit
		name := zone
		for len(name) < maxNameLen-maxLabelLen-1 {
			name = g.randLabel(maxLabelLen) + "." + name
		}

		remaining := maxNameLen - len(name) - 2
		if remaining > 0 {
			name = g.randLabel(remaining) + "." + name
		}

		return name
	default:
		// zero additional labels, the zone apex itself
		return zone
	}
}

func (g *Generator) randLabel(n int) string {
	if n > maxLabelLen {
		n = maxLabelLen
	}

	b := make([]byte, n)
	for i := range b {
		b[i] = labelChars[g.rnd.Intn(len(labelChars))]
	}

	return string(b)
}

func mixCase(name string, rnd *rand.Rand) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'a' && c <= 'z' && rnd.Intn(2) == 0 {
			b[i] = c - 'a' + 'A'
		}
	}

	return string(b)
}
