package evt

import (
	"github.com/asaskevich/EventBus"
)

const (
	// CaseCompleted fires after a test case reached its final verdict.
	// Parameters: case index (uint), verdict string
	CaseCompleted = "run:caseCompleted"

	// DivergenceFound fires when a case is judged divergent.
	// Parameters: case index (uint), diverging field name
	DivergenceFound = "run:divergenceFound"

	// CaseRetried fires when an inconclusive case is re-run.
	// Parameters: case index (uint), attempt number (uint)
	CaseRetried = "run:caseRetried"

	// RunFinished fires once after the last case completed.
	// Parameters: total (uint), divergent (uint), inconclusive (uint)
	RunFinished = "run:finished"
)

// nolint:gochecknoglobals
var evtBus = EventBus.New()

// Bus returns the global event bus
func Bus() EventBus.Bus {
	return evtBus
}
