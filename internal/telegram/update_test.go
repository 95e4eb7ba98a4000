package telegram

import (
	"encoding/json"
	"testing"
)

func TestExtractFileReference(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantID string
		wantOK bool
	}{
		{
			name:   "document preferred over photo",
			raw:    `{"update_id":1,"message":{"message_id":1,"date":0,"chat":{"id":5},"document":{"file_id":"doc","file_name":"struk.pdf","mime_type":"application/pdf"},"photo":[{"file_id":"small"}]}}`,
			wantID: "doc",
			wantOK: true,
		},
		{
			name:   "largest photo size",
			raw:    `{"update_id":2,"message":{"message_id":1,"date":0,"chat":{"id":5},"photo":[{"file_id":"small","file_size":10},{"file_id":"medium","file_size":100},{"file_id":"large","file_size":1000}]}}`,
			wantID: "large",
			wantOK: true,
		},
		{
			name:   "text only",
			raw:    `{"update_id":3,"message":{"message_id":1,"date":0,"chat":{"id":5}}}`,
			wantOK: false,
		},
		{
			name:   "no message",
			raw:    `{"update_id":4}`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u Update
			if err := json.Unmarshal([]byte(tt.raw), &u); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			ref, ok := ExtractFileReference(&u)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ref.FileID != tt.wantID {
				t.Errorf("FileID = %q, want %q", ref.FileID, tt.wantID)
			}
		})
	}
}

func TestBuildContext(t *testing.T) {
	raw := `{"update_id":1,"message":{"message_id":1,"date":0,"chat":{"id":42},"from":{"id":7,"first_name":"Budi"},"caption":"makan siang"}}`
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	ctx := BuildContext(&u)
	if ctx.ChatID == nil || *ctx.ChatID != 42 {
		t.Errorf("ChatID = %v, want 42", ctx.ChatID)
	}
	if ctx.User != "Budi" {
		t.Errorf("User = %q, want first name fallback", ctx.User)
	}
	if Caption(&u) != "makan siang" {
		t.Errorf("Caption = %q", Caption(&u))
	}
}

func TestBuildContext_NilMessage(t *testing.T) {
	ctx := BuildContext(&Update{UpdateID: 1})
	if ctx.ChatID != nil || ctx.User != "" {
		t.Errorf("expected empty context, got %+v", ctx)
	}
}
