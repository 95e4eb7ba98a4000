package receipt

import "errors"

// Error taxonomy shared by the ingestion components.
// Components wrap these with fmt.Errorf("%w: ...") so callers can use errors.Is.
var (
	// ErrConfiguration means a required setting (e.g. the bot token) is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrRemote means the file resolution API answered with a failure.
	ErrRemote = errors.New("remote error")

	// ErrLocalIO means a local staging file could not be created, written or removed.
	ErrLocalIO = errors.New("local io error")

	// ErrExtraction means the extractor could not turn the input into a payload.
	ErrExtraction = errors.New("extraction error")

	// ErrExtractionTimeout means the extractor did not answer in time.
	ErrExtractionTimeout = errors.New("extraction timeout")

	// ErrLedgerWrite means the ledger file could not be initialized or appended to.
	ErrLedgerWrite = errors.New("ledger write error")
)
