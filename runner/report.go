package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dnsparity/dnsparity/model"

	"github.com/google/uuid"
	"github.com/hako/durafmt"
	"github.com/sirupsen/logrus"
)

// Report is the aggregated outcome of one run. It is written as JSON
// lines: one summary line followed by one line per case, ordered by case
// index so reports of identical seeds diff cleanly.
type Report struct {
	RunID         string    `json:"runId"`
	Seed          uint64    `json:"seed"`
	StartedAt     time.Time `json:"startedAt"`
	ElapsedMillis int64     `json:"elapsedMs"`
	Total         uint      `json:"total"`
	Equivalent    uint      `json:"equivalent"`
	Divergent     uint      `json:"divergent"`
	Inconclusive  uint      `json:"inconclusive"`

	Results []*model.CaseResult `json:"-"`

	elapsed time.Duration
}

// NewReport creates an empty report with a fresh run ID
func NewReport(seed uint64) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Seed:      seed,
		StartedAt: time.Now(),
	}
}

func (r *Report) add(result *model.CaseResult) {
	r.Results = append(r.Results, result)
	r.Total++

	switch result.Verdict {
	case model.VerdictEquivalent:
		r.Equivalent++
	case model.VerdictDivergent:
		r.Divergent++
	case model.VerdictInconclusive:
		r.Inconclusive++
	}
}

// finish restores the corpus order, workers complete cases in arbitrary
// order
func (r *Report) finish() {
	sort.Slice(r.Results, func(i, j int) bool {
		return r.Results[i].Index < r.Results[j].Index
	})

	r.elapsed = time.Since(r.StartedAt)
	r.ElapsedMillis = r.elapsed.Milliseconds()
}

// ExitCode returns the process exit code for this run: nonzero exactly
// when at least one case diverged
func (r *Report) ExitCode() int {
	if r.Divergent > 0 {
		return 1
	}

	return 0
}

// Write emits the report as JSON lines
func (r *Report) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)

	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("can't write report summary: %w", err)
	}

	for _, result := range r.Results {
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("can't write case %d: %w", result.Index, err)
		}
	}

	return nil
}

// WriteFile writes the report to the given path
func (r *Report) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can't create report file '%s': %w", path, err)
	}
	defer file.Close()

	return r.Write(file)
}

// LogSummary logs the run outcome
func (r *Report) LogSummary(logger *logrus.Entry) {
	logger.Infof("run %s finished after %s", r.RunID,
		durafmt.Parse(r.elapsed.Round(time.Millisecond)).String())
	logger.Infof("total = %d, equivalent = %d, divergent = %d, inconclusive = %d",
		r.Total, r.Equivalent, r.Divergent, r.Inconclusive)
}
