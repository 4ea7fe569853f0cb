package batch

import "fmt"

// Stage names the step of a ticker's pipeline that failed.
type Stage string

// Pipeline stages, in execution order.
const (
	StageHistory   Stage = "history"
	StageExhibits  Stage = "exhibits"
	StageArtifact  Stage = "artifact"
	StageContainer Stage = "container"
	StageUpload    Stage = "upload"
	StagePanic     Stage = "panic"
)

// TickerError is a failure confined to one ticker. Runner.Run records it as
// a degraded ledger row and never returns it.
type TickerError struct {
	Ticker string
	Stage  Stage
	Err    error
}

func (e *TickerError) Error() string {
	return fmt.Sprintf("ticker %s: %s: %v", e.Ticker, e.Stage, e.Err)
}

func (e *TickerError) Unwrap() error {
	return e.Err
}
