package extraction

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dvloznov/flowrunner/internal/logger"
	"github.com/dvloznov/flowrunner/internal/receipt"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// contentGenerator is the slice of the genai client used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini extracts receipts by sending the staged file to a Gemini model and
// mapping its strict JSON answer into a payload.
type Gemini struct {
	models contentGenerator
	model  string
}

// NewGemini creates a Gemini extractor backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is not set", receipt.ErrConfiguration)
	}
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}

	return &Gemini{models: client.Models, model: model}, nil
}

// Extract implements Extractor.
func (g *Gemini) Extract(ctx context.Context, filePath string, caption string) (*receipt.ReceiptPayload, error) {
	log := logger.FromContext(ctx)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read staged file: %v", receipt.ErrExtraction, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: staged file is empty", receipt.ErrExtraction)
	}

	mimeType := detectMIMEType(filePath, data)

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildReceiptPrompt(caption)},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     data,
					},
				},
			},
		},
	}

	log.Debug().
		Str("model", g.model).
		Str("mime_type", mimeType).
		Int("bytes", len(data)).
		Msg("Sending receipt to Gemini")

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: generate content: %v", receipt.ErrExtractionTimeout, err)
		}
		return nil, fmt.Errorf("%w: generate content: %v", receipt.ErrExtraction, err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("%w: empty response from model", receipt.ErrExtraction)
	}

	payload, err := parseReceiptJSON(rawText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", receipt.ErrExtraction, err)
	}
	if caption != "" {
		payload.Notes = append(payload.Notes, "Caption: "+caption)
	}

	return payload, nil
}

// detectMIMEType prefers the file extension and falls back to sniffing.
func detectMIMEType(filePath string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(filePath)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func buildReceiptPrompt(caption string) string {
	prompt := "You are a receipt parser.\n\n" +
		"Task:\n" +
		"- Read the attached receipt image or document.\n" +
		"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
		"- Output a single JSON object.\n\n" +
		"The object must have these fields:\n" +
		"- \"merchant\": string or null\n" +
		"- \"currency\": string, 3-letter code (e.g. \"IDR\", \"USD\", \"SGD\", \"EUR\", \"MYR\")\n" +
		"- \"transaction_time\": string \"YYYY-MM-DDTHH:MM:SS\" or \"YYYY-MM-DD\", or null\n" +
		"- \"subtotal\": number\n" +
		"- \"total\": number\n" +
		"- \"tax\": number or null\n" +
		"- \"items\": array of objects with \"label\" (string), \"category\" (string),\n" +
		"  \"amount\" (number) and \"confidence\" (number between 0 and 1)\n" +
		"- \"notes\": array of strings\n\n" +
		"Rules:\n" +
		"- Keep items in the order they appear on the receipt.\n" +
		"- Service charges and taxes printed as lines are items too.\n" +
		"- Use a short spending category for each item (e.g. \"Makan\", \"Minuman\", \"Transport\").\n" +
		"Do NOT wrap the response in code fences.\n"

	if caption != "" {
		prompt += "\nThe sender added this caption, use it as a hint: " + caption + "\n"
	}
	return prompt
}

var _ Extractor = (*Gemini)(nil)
