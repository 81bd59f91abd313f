package contracts

import (
	"context"

	"spextract/domain/extraction"
)

// RunRepository records extractor runs.
type RunRepository interface {
	StartRun(ctx context.Context, run *extraction.Run) error
	FinishRun(ctx context.Context, run *extraction.Run) error
	// LastRun returns the most recently started run for a state key.
	LastRun(ctx context.Context, stateKey string) (*extraction.Run, error)
}
