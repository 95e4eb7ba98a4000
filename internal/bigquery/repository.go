package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	// DefaultDatasetID is the dataset holding the ledger mirror.
	DefaultDatasetID = "finance"
	// DefaultLineItemsTable is the mirror table name.
	DefaultLineItemsTable = "receipt_line_items"
)

// LineItemRepository provides the operations the exporter needs.
type LineItemRepository interface {
	// ExistingLineItemIDs returns every line_item_id already in the table.
	ExistingLineItemIDs(ctx context.Context) (map[string]struct{}, error)

	// InsertLineItems streams rows into the table.
	InsertLineItems(ctx context.Context, rows []*LineItemRow) error
}

// Repository is the BigQuery-backed LineItemRepository.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

// NewRepository creates a repository for project.dataset.table.
func NewRepository(ctx context.Context, projectID, datasetID, tableID, credentialsFile string) (*Repository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewRepository: bigquery project is not set")
	}
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	if tableID == "" {
		tableID = DefaultLineItemsTable
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: bigquery client: %w", err)
	}

	return &Repository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
	}, nil
}

// Close closes the underlying BigQuery client.
func (r *Repository) Close() error {
	return r.client.Close()
}

// ExistingLineItemIDs implements LineItemRepository.
func (r *Repository) ExistingLineItemIDs(ctx context.Context) (map[string]struct{}, error) {
	q := r.client.Query(fmt.Sprintf("SELECT line_item_id FROM `%s.%s.%s`", r.projectID, r.datasetID, r.tableID))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ExistingLineItemIDs: query: %w", err)
	}

	ids := make(map[string]struct{})
	for {
		var row struct {
			LineItemID string `bigquery:"line_item_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ExistingLineItemIDs: iter next: %w", err)
		}
		ids[row.LineItemID] = struct{}{}
	}

	return ids, nil
}

// InsertLineItems implements LineItemRepository.
func (r *Repository) InsertLineItems(ctx context.Context, rows []*LineItemRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(r.tableID).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertLineItems: inserting rows: %w", err)
	}

	return nil
}

var _ LineItemRepository = (*Repository)(nil)
