package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/miekg/dns"
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Config", func() {
	ginkgo.Describe("NewConfig", func() {
		ginkgo.It("applies default values", func() {
			cfg, err := NewConfig()
			Expect(err).Should(Succeed())

			Expect(cfg.Seed).Should(Equal(uint64(1)))
			Expect(cfg.WorkerCount).Should(Equal(uint(4)))
			Expect(cfg.QueryTimeout.ToDuration()).Should(Equal(5 * time.Second))
			Expect(cfg.RetryBudget).Should(Equal(uint(1)))
			Expect(cfg.TTLTolerancePercent).Should(Equal(5.0))
			Expect(cfg.DNSSEC.Verify).Should(BeTrue())
			Expect(cfg.Backends.Mode).Should(Equal(BackendModeBoth))
			Expect(cfg.Report.Path).Should(Equal("report.jsonl"))
		})
	})

	ginkgo.Describe("LoadConfig", func() {
		var configFile string

		writeConfig := func(content string) {
			dir := ginkgo.GinkgoT().TempDir()
			configFile = filepath.Join(dir, "config.yml")
			Expect(os.WriteFile(configFile, []byte(content), 0o600)).Should(Succeed())
		}

		ginkgo.It("loads a complete configuration", func() {
			writeConfig(`
seed: 42
workerCount: 8
queryTimeout: 2s
backends:
  mode: both
  network: udp:203.0.113.1
  library: udp:203.0.113.2:5353
coverage:
  zones:
    - example.org
  count: 10
`)

			cfg, err := LoadConfig(configFile)
			Expect(err).Should(Succeed())

			Expect(cfg.Seed).Should(Equal(uint64(42)))
			Expect(cfg.WorkerCount).Should(Equal(uint(8)))
			Expect(cfg.Backends.Network.Host).Should(Equal("203.0.113.1"))
			Expect(cfg.Backends.Network.Port).Should(Equal(uint16(53)))
			Expect(cfg.Backends.Library.Port).Should(Equal(uint16(5353)))
			Expect(cfg.Coverage.Zones).Should(ContainElement("example.org."))
			Expect(cfg.Coverage.Count).Should(Equal(uint(10)))
		})

		ginkgo.It("rejects unknown fields", func() {
			writeConfig(`
bogusOption: true
`)

			_, err := LoadConfig(configFile)
			Expect(err).Should(HaveOccurred())
			Expect(err.Error()).Should(ContainSubstring("wrong file structure"))
		})

		ginkgo.It("rejects a missing backend address", func() {
			writeConfig(`
backends:
  mode: both
  network: udp:203.0.113.1
coverage:
  zones:
    - example.org
`)

			_, err := LoadConfig(configFile)
			Expect(err).Should(HaveOccurred())
			Expect(err.Error()).Should(ContainSubstring("library upstream"))
		})

		ginkgo.It("fails on a nonexistent file", func() {
			_, err := LoadConfig("/does/not/exist.yml")
			Expect(err).Should(HaveOccurred())
		})
	})

	ginkgo.Describe("Validate", func() {
		var cfg *Config

		ginkgo.BeforeEach(func() {
			var err error

			cfg, err = NewConfig()
			Expect(err).Should(Succeed())

			cfg.Backends.Network, _ = ParseUpstream("udp:203.0.113.1")
			cfg.Backends.Library, _ = ParseUpstream("udp:203.0.113.2")
			cfg.Coverage.Zones = []string{"example.org."}
		})

		ginkgo.It("accepts a valid configuration", func() {
			Expect(cfg.Validate()).Should(Succeed())
		})

		ginkgo.It("collects multiple problems into one error", func() {
			cfg.WorkerCount = 0
			cfg.TTLTolerancePercent = 200

			err := cfg.Validate()
			Expect(err).Should(HaveOccurred())
			Expect(err.Error()).Should(ContainSubstring("workerCount"))
			Expect(err.Error()).Should(ContainSubstring("ttlTolerancePercent"))
		})

		ginkgo.It("rejects a zero query timeout", func() {
			cfg.QueryTimeout = Duration(0)

			Expect(cfg.Validate()).Should(HaveOccurred())
		})
	})
})

var _ = ginkgo.Describe("Duration", func() {
	ginkgo.It("parses a duration string", func() {
		var d Duration

		Expect(d.UnmarshalText([]byte("90s"))).Should(Succeed())
		Expect(d.ToDuration()).Should(Equal(90 * time.Second))
	})

	ginkgo.It("rejects garbage", func() {
		var d Duration

		Expect(d.UnmarshalText([]byte("not-a-duration"))).Should(HaveOccurred())
	})

	ginkgo.It("formats itself human readable", func() {
		d := Duration(90 * time.Second)

		Expect(d.String()).Should(Equal("1 minute 30 seconds"))
	})
})

var _ = ginkgo.Describe("Upstream", func() {
	ginkgo.It("parses host only", func() {
		u, err := ParseUpstream("203.0.113.1")
		Expect(err).Should(Succeed())
		Expect(u.Net).Should(Equal(NetUDP))
		Expect(u.Host).Should(Equal("203.0.113.1"))
		Expect(u.Port).Should(Equal(uint16(53)))
	})

	ginkgo.It("parses net, host and port", func() {
		u, err := ParseUpstream("tcp:localhost:5353")
		Expect(err).Should(Succeed())
		Expect(u.Net).Should(Equal(NetTCP))
		Expect(u.Host).Should(Equal("localhost"))
		Expect(u.Port).Should(Equal(uint16(5353)))
	})

	ginkgo.It("rejects an invalid port", func() {
		_, err := ParseUpstream("udp:localhost:notaport")
		Expect(err).Should(HaveOccurred())
	})
})

var _ = ginkgo.Describe("Coverage", func() {
	ginkgo.It("requires the mandatory record types", func() {
		cov := Coverage{
			Types: NewQTypeSet(dns.Type(dns.TypeA)),
			Zones: []string{"example.org."},
			Count: 5,
		}

		err := cov.Validate()
		Expect(err).Should(HaveOccurred())
		Expect(err.Error()).Should(ContainSubstring("NS"))
	})

	ginkgo.It("requires key record coverage", func() {
		cov := Coverage{
			Types: NewQTypeSet(
				dns.Type(dns.TypeA),
				dns.Type(dns.TypeNS),
				dns.Type(dns.TypeMX),
				dns.Type(dns.TypeTXT),
			),
			Zones: []string{"example.org."},
			Count: 5,
		}

		err := cov.Validate()
		Expect(err).Should(HaveOccurred())
		Expect(err.Error()).Should(ContainSubstring("DNSKEY"))
	})

	ginkgo.It("normalizes zones to fully qualified names", func() {
		cov := Coverage{
			Types: DefaultQTypes(),
			Zones: []string{"example.org"},
			Count: 5,
		}

		Expect(cov.Validate()).Should(Succeed())
		Expect(cov.Zones).Should(ContainElement("example.org."))
	})

	ginkgo.It("rejects an invalid zone name", func() {
		cov := Coverage{
			Types: DefaultQTypes(),
			Zones: []string{"exa mple..org"},
			Count: 5,
		}

		Expect(cov.Validate()).Should(HaveOccurred())
	})
})

var _ = ginkgo.Describe("BackendMode", func() {
	ginkgo.It("parses all modes", func() {
		for input, expected := range map[string]BackendMode{
			"both":    BackendModeBoth,
			"network": BackendModeNetwork,
			"library": BackendModeLibrary,
		} {
			var m BackendMode

			Expect(m.UnmarshalText([]byte(input))).Should(Succeed())
			Expect(m).Should(Equal(expected))
		}
	})

	ginkgo.It("rejects unknown modes", func() {
		var m BackendMode

		Expect(m.UnmarshalText([]byte("sideways"))).Should(HaveOccurred())
	})
})
