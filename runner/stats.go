package runner

import (
	"sync/atomic"

	"github.com/dnsparity/dnsparity/evt"

	"github.com/sirupsen/logrus"
)

// stats subscribes to the run events and logs progress. Retries are
// counted atomically, workers publish from their own goroutines.
type stats struct {
	logger  *logrus.Entry
	retries uint64
}

func newStats(logger *logrus.Entry) *stats {
	s := &stats{logger: logger}

	_ = evt.Bus().Subscribe(evt.CaseRetried, s.onCaseRetried)
	_ = evt.Bus().Subscribe(evt.DivergenceFound, s.onDivergenceFound)
	_ = evt.Bus().Subscribe(evt.RunFinished, s.onRunFinished)

	return s
}

func (s *stats) close() {
	_ = evt.Bus().Unsubscribe(evt.CaseRetried, s.onCaseRetried)
	_ = evt.Bus().Unsubscribe(evt.DivergenceFound, s.onDivergenceFound)
	_ = evt.Bus().Unsubscribe(evt.RunFinished, s.onRunFinished)
}

func (s *stats) onCaseRetried(index, attempt uint) {
	atomic.AddUint64(&s.retries, 1)
}

func (s *stats) onDivergenceFound(index uint, field string) {
	s.logger.WithFields(logrus.Fields{
		"case":  index,
		"field": field,
	}).Warn("divergence found")
}

func (s *stats) onRunFinished(total, divergent, inconclusive uint) {
	s.logger.Infof("completed %d case(s) with %d retried attempt(s), %d divergent, %d inconclusive",
		total, atomic.LoadUint64(&s.retries), divergent, inconclusive)
}
