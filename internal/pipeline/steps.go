package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/flowrunner/internal/extraction"
	"github.com/dvloznov/flowrunner/internal/receipt"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Stage() Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Ref        receipt.FileReference
	Caption    string
	Meta       receipt.Context
	StagedPath string
	Payload    *receipt.ReceiptPayload
	RowIndex   int
}

// StageStep fetches the referenced file into a staged local path.
type StageStep struct {
	stager Stager
}

func (s *StageStep) Stage() Stage { return StageStaging }

func (s *StageStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.stager == nil {
		return fmt.Errorf("%w: no file stager configured", receipt.ErrConfiguration)
	}
	p, err := s.stager.Fetch(ctx, state.Ref)
	if err != nil {
		return err
	}
	state.StagedPath = p
	return nil
}

// ExtractStep turns the staged file into a receipt payload.
type ExtractStep struct {
	extractor extraction.Extractor
}

func (s *ExtractStep) Stage() Stage { return StageExtraction }

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	payload, err := s.extractor.Extract(ctx, state.StagedPath, state.Caption)
	if err != nil {
		return err
	}
	if payload == nil {
		return fmt.Errorf("%w: extractor returned no payload", receipt.ErrExtraction)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", receipt.ErrExtraction, err)
	}
	state.Payload = payload
	return nil
}

// PersistStep appends the payload's line items to the ledger.
type PersistStep struct {
	ledger  LedgerWriter
	csvPath string
}

func (s *PersistStep) Stage() Stage { return StagePersistence }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	idx, err := s.ledger.Append(s.csvPath, state.Payload)
	if err != nil {
		return err
	}
	state.RowIndex = idx
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure, which
// is returned as a *StageError naming the failed step.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for _, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return &StageError{Stage: step.Stage(), Err: err}
		}
	}
	return nil
}
