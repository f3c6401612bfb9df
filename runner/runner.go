// Package runner drives a test run: it feeds the generated corpus to a
// bounded worker pool, executes every case against all enabled backends,
// applies the retry policy for transient failures and aggregates the final
// report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnsparity/dnsparity/backend"
	"github.com/dnsparity/dnsparity/compare"
	"github.com/dnsparity/dnsparity/config"
	"github.com/dnsparity/dnsparity/corpus"
	"github.com/dnsparity/dnsparity/dnssec"
	"github.com/dnsparity/dnsparity/evt"
	"github.com/dnsparity/dnsparity/log"
	"github.com/dnsparity/dnsparity/model"
	"github.com/dnsparity/dnsparity/normalize"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"
)

const (
	// BackendNameNetwork is the report key of the network backend
	BackendNameNetwork = "network"
	// BackendNameLibrary is the report key of the library backend
	BackendNameLibrary = "library"

	retryCooldown = 250 * time.Millisecond
)

// namedBackend pairs a backend with its report key and its verifier. Each
// backend verifies with its own key material, a divergence in DNSSEC
// posture must be attributable to one side.
type namedBackend struct {
	name     string
	backend  backend.Backend
	verifier *dnssec.Verifier
}

// Runner executes one complete test run
type Runner struct {
	cfg       *config.Config
	backends  []namedBackend
	generator *corpus.Generator
	logger    *logrus.Entry
}

// NewRunner creates a runner from the validated configuration
func NewRunner(cfg *config.Config) (*Runner, error) {
	generator, err := corpus.NewGenerator(cfg.Coverage, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("can't create corpus generator: %w", err)
	}

	var backends []namedBackend

	if cfg.Backends.NetworkEnabled() {
		b := backend.NewNetworkBackend(cfg.Backends.Network, cfg.QueryTimeout.ToDuration())

		named, err := newNamedBackend(BackendNameNetwork, b, cfg)
		if err != nil {
			return nil, err
		}

		backends = append(backends, named)
	}

	if cfg.Backends.LibraryEnabled() {
		exchanger := backend.NewClientExchanger(cfg.Backends.Library, cfg.QueryTimeout.ToDuration())
		b := backend.NewLibraryBackend(exchanger)

		named, err := newNamedBackend(BackendNameLibrary, b, cfg)
		if err != nil {
			return nil, err
		}

		backends = append(backends, named)
	}

	return &Runner{
		cfg:       cfg,
		backends:  backends,
		generator: generator,
		logger:    log.PrefixedLog("runner"),
	}, nil
}

func newNamedBackend(name string, b backend.Backend, cfg *config.Config) (namedBackend, error) {
	named := namedBackend{name: name, backend: b}

	if cfg.DNSSEC.IsEnabled() {
		verifier, err := dnssec.NewVerifier(cfg.DNSSEC, b)
		if err != nil {
			return namedBackend{}, fmt.Errorf("can't create verifier for backend %s: %w", name, err)
		}

		named.verifier = verifier
	}

	return named, nil
}

type indexedQuery struct {
	index uint
	query *model.Query
}

// Run executes all corpus cases and returns the aggregated report. The run
// deadline cancels case production, cases already in flight still complete
// and appear in the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.cfg.RunDeadline.IsAboveZero() {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunDeadline.ToDuration())
		defer cancel()
	}

	r.logger.Infof("starting run with %d case(s), %d worker(s), seed %d",
		r.generator.Size(), r.cfg.WorkerCount, r.cfg.Seed)

	stats := newStats(r.logger)
	defer stats.close()

	report := NewReport(r.cfg.Seed)

	cases := make(chan indexedQuery)
	results := make(chan *model.CaseResult)

	go func() {
		defer close(cases)

		var index uint

		for !r.generator.Done() {
			query := r.generator.Next()

			select {
			case cases <- indexedQuery{index: index, query: query}:
			case <-ctx.Done():
				r.logger.Warn("run deadline exceeded, stopping case production")

				return
			}

			index++
		}
	}()

	var wg sync.WaitGroup

	for i := uint(0); i < r.cfg.WorkerCount; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for c := range cases {
				results <- r.executeCase(ctx, c.index, c.query)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		report.add(result)

		evt.Bus().Publish(evt.CaseCompleted, result.Index, result.Verdict.String())

		if result.Verdict == model.VerdictDivergent && result.Divergence != nil {
			evt.Bus().Publish(evt.DivergenceFound, result.Index, result.Divergence.Field)
		}
	}

	report.finish()
	evt.Bus().Publish(evt.RunFinished, report.Total, report.Divergent, report.Inconclusive)

	return report, nil
}

// executeCase runs one case through the retry state machine. Only transient
// transport failures are retried, a verdict reached on any attempt is
// final. A case that stays transient through the whole budget ends
// inconclusive, never divergent: an unreachable backend proves nothing
// about behavior differences.
func (r *Runner) executeCase(ctx context.Context, index uint, query *model.Query) *model.CaseResult {
	var (
		result   *model.CaseResult
		attempts uint
	)

	err := retry.Do(
		func() error {
			attempts++

			outcome, transientErr := r.runAttempt(ctx, query)
			if transientErr != nil {
				return transientErr
			}

			result = outcome

			return nil
		},
		retry.Attempts(r.cfg.RetryBudget+1),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(retryCooldown),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.WithFields(logrus.Fields{
				"case":    index,
				"attempt": n + 1,
			}).Warnf("transient failure, retrying: %v", err)

			evt.Bus().Publish(evt.CaseRetried, index, n+1)
		}),
	)
	if err != nil {
		reason := fmt.Sprintf("transport failed after %d attempt(s): %v", attempts, err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// the run deadline ended this case, not its own transport
			reason = "run deadline exceeded"
		}

		result = &model.CaseResult{
			Verdict: model.VerdictInconclusive,
			Reason:  reason,
		}
	}

	result.Index = index
	result.Query = query
	result.Attempts = attempts

	return result
}

type backendOutcome struct {
	name string
	raw  *model.RawResponse
	err  error
}

// runAttempt queries all backends once and judges the pair. The returned
// error marks the attempt as transient and retryable, otherwise the result
// is final.
func (r *Runner) runAttempt(ctx context.Context, query *model.Query) (*model.CaseResult, error) {
	outcomes := make([]backendOutcome, len(r.backends))

	var wg sync.WaitGroup

	for i, named := range r.backends {
		wg.Add(1)

		go func(i int, named namedBackend) {
			defer wg.Done()

			queryCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout.ToDuration())
			defer cancel()

			raw, err := named.backend.Query(queryCtx, query)
			outcomes[i] = backendOutcome{name: named.name, raw: raw, err: err}
		}(i, named)
	}

	// both backends are awaited before judging, a fast failure on one side
	// must not suppress the other side's evidence
	wg.Wait()

	for _, outcome := range outcomes {
		if outcome.err != nil && backend.IsTransient(outcome.err) {
			return nil, fmt.Errorf("backend %s: %w", outcome.name, outcome.err)
		}
	}

	// remaining failures are hard ones: unparseable bytes or protocol
	// violations, produced by the backend itself
	for _, outcome := range outcomes {
		if outcome.err != nil {
			return r.protocolViolation(outcomes), nil
		}
	}

	result := &model.CaseResult{
		RTTMillis: make(map[string]int64, len(outcomes)),
	}

	for _, outcome := range outcomes {
		result.RTTMillis[outcome.name] = outcome.raw.RTT.Milliseconds()
	}

	normalized := make([]*model.NormalizedResponse, len(outcomes))
	for i, outcome := range outcomes {
		normalized[i] = normalize.Normalize(outcome.raw)
	}

	if len(outcomes) == 1 {
		// single backend smoke mode: a well-formed response is a pass
		result.Verdict = model.VerdictEquivalent
		result.Reason = "single backend smoke run"
	} else {
		comparison := compare.Compare(normalized[0], normalized[1], compare.Options{
			TTLTolerancePercent: r.cfg.TTLTolerancePercent,
			CompareEDNS:         r.cfg.Coverage.EDNSSignificant,
		})

		result.Verdict = comparison.Verdict
		result.Divergence = comparison.Divergence
	}

	if r.cfg.DNSSEC.IsEnabled() && query.DNSSEC {
		r.verify(ctx, result, outcomes, normalized)
	}

	if result.Verdict == model.VerdictDivergent {
		result.Responses = make(map[string]string, len(outcomes))
		for _, outcome := range outcomes {
			result.Responses[outcome.name] = outcome.raw.Res.String()
		}
	}

	return result, nil
}

// verify runs the DNSSEC verifier per backend and folds the outcome into
// the verdict. A secure versus bogus split is a real behavior difference
// even when the record sets are equal: one backend vouches for data the
// other proves invalid.
func (r *Runner) verify(ctx context.Context, result *model.CaseResult,
	outcomes []backendOutcome, normalized []*model.NormalizedResponse,
) {
	result.Verify = make(map[string]*model.Verification, len(outcomes))

	for i, named := range r.backends {
		if named.verifier == nil {
			continue
		}

		result.Verify[outcomes[i].name] = named.verifier.Verify(ctx, normalized[i])
	}

	if result.Verdict != model.VerdictEquivalent || len(outcomes) != 2 {
		return
	}

	a, b := result.Verify[outcomes[0].name], result.Verify[outcomes[1].name]
	if a == nil || b == nil {
		return
	}

	if isSecureBogusSplit(a.Result, b.Result) {
		result.Verdict = model.VerdictDivergent
		result.Divergence = &model.Divergence{
			Field: "dnssec",
			A:     a.Result.String(),
			B:     b.Result.String(),
		}
	}
}

func isSecureBogusSplit(a, b model.VerificationResult) bool {
	return (a == model.VerificationSecure && b == model.VerificationBogus) ||
		(a == model.VerificationBogus && b == model.VerificationSecure)
}

// protocolViolation judges an attempt where at least one backend produced
// unparseable bytes or violated the protocol. This is a property of the
// backend and will not improve with retries.
func (r *Runner) protocolViolation(outcomes []backendOutcome) *model.CaseResult {
	result := &model.CaseResult{
		Verdict:   model.VerdictDivergent,
		Reason:    "protocol violation",
		Responses: make(map[string]string, len(outcomes)),
	}

	for _, outcome := range outcomes {
		result.Responses[outcome.name] = describeOutcome(outcome)
	}

	if len(outcomes) == 2 {
		result.Divergence = &model.Divergence{
			Field: "protocol",
			A:     describeOutcome(outcomes[0]),
			B:     describeOutcome(outcomes[1]),
		}
	}

	return result
}

func describeOutcome(outcome backendOutcome) string {
	if outcome.err != nil {
		return outcome.err.Error()
	}

	return "well-formed response"
}
