package telegram

import "github.com/dvloznov/flowrunner/internal/receipt"

// Update is the subset of a Telegram webhook update the service reads.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is a chat message that may carry a receipt.
type Message struct {
	MessageID int64     `json:"message_id"`
	Date      int64     `json:"date"`
	Chat      Chat      `json:"chat"`
	From      *User     `json:"from,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	Document  *FileRef  `json:"document,omitempty"`
	Photo     []FileRef `json:"photo,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// User is the sender of a message.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// FileRef is a document or photo size as sent by Telegram.
type FileRef struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

func (f FileRef) toReference() receipt.FileReference {
	return receipt.FileReference{
		FileID:   f.FileID,
		FileName: f.FileName,
		MimeType: f.MimeType,
		FileSize: f.FileSize,
	}
}

// ExtractFileReference picks the file to ingest from an update: the document
// when present, otherwise the largest photo size (Telegram lists sizes in
// ascending order). It returns false when the update carries neither.
func ExtractFileReference(u *Update) (receipt.FileReference, bool) {
	if u == nil || u.Message == nil {
		return receipt.FileReference{}, false
	}

	if u.Message.Document != nil && u.Message.Document.FileID != "" {
		return u.Message.Document.toReference(), true
	}

	if n := len(u.Message.Photo); n > 0 {
		return u.Message.Photo[n-1].toReference(), true
	}

	return receipt.FileReference{}, false
}

// Caption returns the message caption, or "" when there is none.
func Caption(u *Update) string {
	if u == nil || u.Message == nil {
		return ""
	}
	return u.Message.Caption
}

// BuildContext derives the caller metadata recorded with an ingestion.
func BuildContext(u *Update) receipt.Context {
	var ctx receipt.Context
	if u == nil || u.Message == nil {
		return ctx
	}

	chatID := u.Message.Chat.ID
	ctx.ChatID = &chatID

	if from := u.Message.From; from != nil {
		ctx.User = from.Username
		if ctx.User == "" {
			ctx.User = from.FirstName
		}
	}

	return ctx
}
