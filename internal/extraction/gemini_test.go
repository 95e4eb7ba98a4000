package extraction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/flowrunner/internal/receipt"
	"google.golang.org/genai"
)

type mockGenerator struct {
	text      string
	err       error
	gotModel  string
	gotBlob   *genai.Blob
	gotPrompt string
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.gotModel = model
	for _, c := range contents {
		for _, p := range c.Parts {
			if p.InlineData != nil {
				m.gotBlob = p.InlineData
			}
			if p.Text != "" {
				m.gotPrompt = p.Text
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: m.text}}}},
		},
	}, nil
}

func writeStaged(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return p
}

const geminiAnswer = "```json\n" + `{
  "merchant": "Kopi Kenangan",
  "currency": "idr",
  "transaction_time": "2024-05-01T08:15:00",
  "subtotal": 70000,
  "total": 78000.50,
  "tax": 8000.5,
  "items": [
    {"label": "Kopi susu dingin", "category": "Minuman", "amount": 28000, "confidence": 0.92},
    {"label": "Sandwich tuna", "category": "Makan", "amount": "42000", "confidence": 0.87}
  ],
  "notes": ["Struk terbaca jelas"]
}` + "\n```"

func TestGemini_Extract(t *testing.T) {
	gen := &mockGenerator{text: geminiAnswer}
	g := &Gemini{models: gen, model: "test-model"}
	staged := writeStaged(t, "receipt-1.jpg", "fake-jpeg")

	payload, err := g.Extract(context.Background(), staged, "kantor")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if gen.gotModel != "test-model" {
		t.Errorf("model = %q", gen.gotModel)
	}
	if gen.gotBlob == nil || gen.gotBlob.MIMEType != "image/jpeg" || string(gen.gotBlob.Data) != "fake-jpeg" {
		t.Errorf("unexpected inline blob: %+v", gen.gotBlob)
	}
	if !strings.Contains(gen.gotPrompt, "kantor") {
		t.Error("caption should be passed to the model as a hint")
	}

	if payload.Merchant != "Kopi Kenangan" || payload.Currency != "IDR" {
		t.Errorf("merchant/currency = %q/%q", payload.Merchant, payload.Currency)
	}
	if payload.Total.StringFixed(2) != "78000.50" {
		t.Errorf("total = %s", payload.Total)
	}
	if !payload.Tax.Valid || payload.Tax.Decimal.StringFixed(1) != "8000.5" {
		t.Errorf("tax = %+v", payload.Tax)
	}
	if payload.TransactionTime == nil || payload.TransactionTime.Hour() != 8 {
		t.Errorf("transaction time = %v", payload.TransactionTime)
	}
	if len(payload.Items) != 2 || payload.Items[1].Amount.IntPart() != 42000 {
		t.Errorf("items = %+v", payload.Items)
	}
	wantNotes := []string{"Struk terbaca jelas", "Caption: kantor"}
	if strings.Join(payload.Notes, "|") != strings.Join(wantNotes, "|") {
		t.Errorf("notes = %v, want %v", payload.Notes, wantNotes)
	}
}

func TestGemini_ExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *mockGenerator
		file string
		want error
	}{
		{"backend failure", &mockGenerator{err: errors.New("503")}, "ok", receipt.ErrExtraction},
		{"empty answer", &mockGenerator{text: ""}, "ok", receipt.ErrExtraction},
		{"not json", &mockGenerator{text: "sorry, I cannot read this"}, "ok", receipt.ErrExtraction},
		{"item without label", &mockGenerator{text: `{"subtotal":1,"total":1,"items":[{"category":"x","amount":1}]}`}, "ok", receipt.ErrExtraction},
		{"empty file", &mockGenerator{text: geminiAnswer}, "", receipt.ErrExtraction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Gemini{models: tt.gen, model: DefaultModelName}
			staged := writeStaged(t, "receipt.pdf", tt.file)

			_, err := g.Extract(context.Background(), staged, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewGemini_RequiresAPIKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "")
	if !errors.Is(err, receipt.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding text", "Here you go: {\"a\":1} thanks", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.in); got != tt.want {
				t.Errorf("cleanModelJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseReceiptJSON_Defaults(t *testing.T) {
	payload, err := parseReceiptJSON(`{"subtotal": 10, "total": 10, "items": []}`)
	if err != nil {
		t.Fatalf("parseReceiptJSON failed: %v", err)
	}
	if payload.Currency != "IDR" {
		t.Errorf("Currency = %q, want IDR default", payload.Currency)
	}
	if payload.Source != receipt.DefaultSource {
		t.Errorf("Source = %q", payload.Source)
	}
	if payload.Tax.Valid {
		t.Error("tax should be null")
	}
	if payload.TransactionTime != nil {
		t.Error("transaction time should be unset")
	}
}

func TestParseReceiptJSON_ConfidenceRange(t *testing.T) {
	_, err := parseReceiptJSON(`{"subtotal":1,"total":1,"items":[{"label":"a","category":"b","amount":1,"confidence":1.5}]}`)
	if err == nil {
		t.Error("expected error for confidence outside [0,1]")
	}
}
