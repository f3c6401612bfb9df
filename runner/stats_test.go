package runner

import (
	"github.com/dnsparity/dnsparity/evt"
	"github.com/dnsparity/dnsparity/log"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("stats", func() {
	var (
		sut  *stats
		hook *log.MockLoggerHook
	)

	ginkgo.BeforeEach(func() {
		logEntry, h := log.NewMockEntry()
		hook = h
		sut = newStats(logEntry)

		ginkgo.DeferCleanup(sut.close)
		ginkgo.DeferCleanup(hook.Reset)
	})

	ginkgo.It("logs found divergences", func() {
		evt.Bus().Publish(evt.DivergenceFound, uint(3), "answer")

		Expect(hook.Messages).Should(ContainElement("divergence found"))
	})

	ginkgo.It("counts retried attempts into the run summary", func() {
		evt.Bus().Publish(evt.CaseRetried, uint(1), uint(2))
		evt.Bus().Publish(evt.RunFinished, uint(5), uint(0), uint(0))

		Expect(hook.Messages).Should(ContainElement(ContainSubstring("1 retried attempt")))
	})
})
