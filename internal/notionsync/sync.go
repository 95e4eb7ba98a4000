package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/dvloznov/flowrunner/internal/logger"
	"github.com/jomei/notionapi"
)

const queryPageSize = 100

// SyncOptions controls a sync run.
type SyncOptions struct {
	// DryRun logs intended changes without calling the write APIs.
	DryRun bool
	// Prune archives pages whose Line ID is not in the ledger.
	Prune bool
}

// SyncResult counts what a sync run did.
type SyncResult struct {
	Total    int `json:"total"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// SyncRecords mirrors ledger rows into a Notion database. Rows already
// present by Line ID are skipped. Per-page write failures are logged and
// counted, they do not abort the run.
func SyncRecords(ctx context.Context, notionClient NotionService, notionDBID string, records []ledger.Record, opts SyncOptions) (SyncResult, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Bool("dry_run", opts.DryRun).
		Bool("prune", opts.Prune).
		Int("record_count", len(records)).
		Msg("Starting ledger sync to Notion")

	result := SyncResult{Total: len(records)}

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return result, fmt.Errorf("SyncRecords: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if id := extractLineID(page); id != "" {
			existing[id] = true
		}
	}

	valid := make(map[string]bool, len(records))
	for i, rec := range records {
		lineID := ledger.LineID(ledger.LineNumber(i), rec)
		valid[lineID] = true

		if existing[lineID] {
			result.Skipped++
			continue
		}

		if opts.DryRun {
			log.Info().
				Str("line_id", lineID).
				Str("item", rec["item"]).
				Msg("[DRY RUN] Would create Notion page for ledger row")
			result.Created++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, RecordToNotionProperties(lineID, rec))
		if err != nil {
			log.Warn().
				Err(err).
				Str("line_id", lineID).
				Msg("Failed to create Notion page for ledger row")
			result.Failed++
			continue
		}

		log.Debug().
			Str("line_id", lineID).
			Str("page_id", string(page.ID)).
			Msg("Created Notion page for ledger row")
		result.Created++
	}

	if opts.Prune {
		for _, page := range pages {
			lineID := extractLineID(page)
			if valid[lineID] {
				continue
			}

			if opts.DryRun {
				log.Info().
					Str("line_id", lineID).
					Str("page_id", string(page.ID)).
					Msg("[DRY RUN] Would archive stale Notion page")
				result.Archived++
				continue
			}

			if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
				log.Warn().
					Err(err).
					Str("page_id", string(page.ID)).
					Msg("Failed to archive stale Notion page")
				result.Failed++
				continue
			}
			result.Archived++
		}
	}

	log.Info().
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("archived", result.Archived).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Msg("Ledger sync to Notion completed")

	return result, nil
}

// queryAllNotionPages follows the cursor until the database is exhausted.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: queryPageSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
