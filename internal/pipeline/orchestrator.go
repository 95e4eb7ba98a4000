package pipeline

import (
	"context"

	"github.com/dvloznov/flowrunner/internal/extraction"
	"github.com/dvloznov/flowrunner/internal/logger"
	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/dvloznov/flowrunner/internal/staging"
)

// Orchestrator runs one receipt submission through stage, extract and persist,
// and removes the staged file whatever the outcome.
type Orchestrator struct {
	stager    Stager
	extractor extraction.Extractor
	ledger    LedgerWriter
	csvPath   string
	remove    func(string) error
}

// NewOrchestrator wires the ingestion dependencies. stager may be nil for
// callers that only use Process.
func NewOrchestrator(stager Stager, extractor extraction.Extractor, ledger LedgerWriter, csvPath string) *Orchestrator {
	return &Orchestrator{
		stager:    stager,
		extractor: extractor,
		ledger:    ledger,
		csvPath:   csvPath,
		remove:    staging.Remove,
	}
}

// CSVPath returns the ledger the orchestrator writes to.
func (o *Orchestrator) CSVPath() string {
	return o.csvPath
}

// Run stages the referenced file, extracts it and appends it to the ledger.
// Any failure is a *StageError. Once staging succeeded the staged file is
// removed exactly once; a failed removal is only logged.
func (o *Orchestrator) Run(ctx context.Context, ref receipt.FileReference, caption string, meta receipt.Context) (*receipt.IngestionResult, error) {
	log := logger.FromContext(ctx).With().Str("file_id", ref.FileID).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{Ref: ref, Caption: caption, Meta: meta}

	if err := NewPipeline(&StageStep{stager: o.stager}).Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("stage", string(StageStaging)).Msg("Failed to stage receipt file")
		return nil, err
	}
	log.Info().Str("staged_path", state.StagedPath).Msg("Receipt file staged")

	defer o.cleanup(ctx, state.StagedPath)

	if state.Meta.RawFilePath == "" {
		state.Meta.RawFilePath = state.StagedPath
	}
	return o.execute(ctx, state)
}

// Process extracts and persists a local file the caller owns. The file is
// left in place.
func (o *Orchestrator) Process(ctx context.Context, filePath string, caption string, meta receipt.Context) (*receipt.IngestionResult, error) {
	state := &PipelineState{Caption: caption, Meta: meta, StagedPath: filePath}
	if state.Meta.RawFilePath == "" {
		state.Meta.RawFilePath = filePath
	}
	return o.execute(ctx, state)
}

func (o *Orchestrator) execute(ctx context.Context, state *PipelineState) (*receipt.IngestionResult, error) {
	log := logger.FromContext(ctx)

	p := NewPipeline(
		&ExtractStep{extractor: o.extractor},
		&PersistStep{ledger: o.ledger, csvPath: o.csvPath},
	)
	if err := p.Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("stage", string(FailedStage(err))).Msg("Receipt ingestion failed")
		return nil, err
	}

	log.Info().
		Int("items", len(state.Payload.Items)).
		Int("row_index", state.RowIndex).
		Str("csv_path", o.csvPath).
		Msg("Receipt persisted")

	return &receipt.IngestionResult{
		Payload:        state.Payload,
		Context:        state.Meta,
		LedgerRowIndex: state.RowIndex,
	}, nil
}

func (o *Orchestrator) cleanup(ctx context.Context, stagedPath string) {
	if err := o.remove(stagedPath); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("staged_path", stagedPath).Msg("Failed to remove staged file")
	}
}
