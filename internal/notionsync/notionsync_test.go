package notionsync

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/jomei/notionapi"
)

// MockNotionService serves pre-paged query results and records writes.
type MockNotionService struct {
	Pages     [][]notionapi.Page
	QueryErr  error
	CreateErr error

	Created  []notionapi.Properties
	Archived []string
	Cursors  []notionapi.Cursor
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.Created = append(m.Created, properties)
	return &notionapi.Page{ID: notionapi.ObjectID("page-new")}, nil
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	m.Cursors = append(m.Cursors, req.StartCursor)

	idx := len(m.Cursors) - 1
	if idx >= len(m.Pages) {
		return &notionapi.DatabaseQueryResponse{}, nil
	}
	resp := &notionapi.DatabaseQueryResponse{Results: m.Pages[idx]}
	if idx < len(m.Pages)-1 {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor("cursor-next")
	}
	return resp, nil
}

func (m *MockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	m.Archived = append(m.Archived, pageID)
	return nil
}

func pageWithLineID(pageID, lineID string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(pageID),
		Properties: notionapi.Properties{
			PropLineID: &notionapi.TitleProperty{
				Title: []notionapi.RichText{{PlainText: lineID}},
			},
		},
	}
}

func records() []ledger.Record {
	return []ledger.Record{
		{
			"timestamp": "2024-01-02T12:30:00Z", "merchant": "-", "category": "Makan",
			"item": "Nasi goreng", "amount": "45000.00", "currency": "IDR", "confidence": "0.80",
			"notes": "", "source": "telegram", "reference_id": "",
		},
		{
			"timestamp": "2024-01-02T12:30:00Z", "merchant": "Kopi Kenangan", "category": "Minuman",
			"item": "Es kopi", "amount": "22000.00", "currency": "IDR", "confidence": "0.90",
			"notes": "promo", "source": "telegram", "reference_id": "INV-1",
		},
	}
}

func TestRecordToNotionProperties(t *testing.T) {
	recs := records()

	props := RecordToNotionProperties("line-1", recs[1])
	title, ok := props[PropLineID].(notionapi.TitleProperty)
	if !ok || title.Title[0].Text.Content != "line-1" {
		t.Errorf("title = %+v", props[PropLineID])
	}
	if amount := props[PropAmount].(notionapi.NumberProperty); amount.Number != 22000 {
		t.Errorf("amount = %v", amount.Number)
	}
	if sel := props[PropCurrency].(notionapi.SelectProperty); sel.Select.Name != "IDR" {
		t.Errorf("currency = %+v", sel)
	}
	if _, ok := props[PropDate].(notionapi.DateProperty); !ok {
		t.Error("expected a date property")
	}
	if _, ok := props[PropReference]; !ok {
		t.Error("expected reference property")
	}

	props = RecordToNotionProperties("line-0", recs[0])
	for _, name := range []string{PropMerchant, PropNotes, PropReference} {
		if _, ok := props[name]; ok {
			t.Errorf("%s should be omitted for empty cells", name)
		}
	}

	bad := recs[0]
	bad["amount"] = "n/a"
	if _, ok := RecordToNotionProperties("x", bad)[PropAmount]; ok {
		t.Error("unparseable amount should be omitted")
	}
}

func TestSyncRecords_CreatesMissing(t *testing.T) {
	recs := records()
	firstID := ledger.LineID(ledger.LineNumber(0), recs[0])
	svc := &MockNotionService{
		Pages: [][]notionapi.Page{
			{pageWithLineID("p1", firstID)},
			{pageWithLineID("p2", "stale")},
		},
	}

	result, err := SyncRecords(context.Background(), svc, "db", recs, SyncOptions{})
	if err != nil {
		t.Fatalf("SyncRecords failed: %v", err)
	}
	if result != (SyncResult{Total: 2, Created: 1, Skipped: 1}) {
		t.Errorf("result = %+v", result)
	}
	if len(svc.Cursors) != 2 || svc.Cursors[1] != "cursor-next" {
		t.Errorf("pagination cursors = %v", svc.Cursors)
	}
	if len(svc.Archived) != 0 {
		t.Error("pages must not be archived without Prune")
	}
}

func TestSyncRecords_Prune(t *testing.T) {
	svc := &MockNotionService{
		Pages: [][]notionapi.Page{{pageWithLineID("p-stale", "gone"), pageWithLineID("p-empty", "")}},
	}

	result, err := SyncRecords(context.Background(), svc, "db", nil, SyncOptions{Prune: true})
	if err != nil {
		t.Fatalf("SyncRecords failed: %v", err)
	}
	if result.Archived != 2 || len(svc.Archived) != 2 {
		t.Errorf("archived %d (%v)", result.Archived, svc.Archived)
	}
}

func TestSyncRecords_DryRun(t *testing.T) {
	svc := &MockNotionService{
		Pages: [][]notionapi.Page{{pageWithLineID("p-stale", "gone")}},
	}

	result, err := SyncRecords(context.Background(), svc, "db", records(), SyncOptions{DryRun: true, Prune: true})
	if err != nil {
		t.Fatalf("SyncRecords failed: %v", err)
	}
	if result.Created != 2 || result.Archived != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(svc.Created) != 0 || len(svc.Archived) != 0 {
		t.Error("dry run must not write")
	}
}

func TestSyncRecords_Errors(t *testing.T) {
	boom := errors.New("boom")

	if _, err := SyncRecords(context.Background(), &MockNotionService{QueryErr: boom}, "db", records(), SyncOptions{}); !errors.Is(err, boom) {
		t.Errorf("expected query error, got %v", err)
	}

	result, err := SyncRecords(context.Background(), &MockNotionService{CreateErr: boom}, "db", records(), SyncOptions{})
	if err != nil {
		t.Fatalf("create failures should not abort: %v", err)
	}
	if result.Failed != 2 || result.Created != 0 {
		t.Errorf("result = %+v", result)
	}
}
