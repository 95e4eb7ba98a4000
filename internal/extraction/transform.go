package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/shopspring/decimal"
)

// defaultCurrency is assumed when the model leaves the currency blank.
const defaultCurrency = "IDR"

var transactionTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseReceiptJSON maps the model's JSON answer into a validated payload.
func parseReceiptJSON(raw string) (*receipt.ReceiptPayload, error) {
	clean := cleanModelJSON(raw)

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()

	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("parseReceiptJSON: unmarshal JSON: %w", err)
	}

	merchant, err := getOptionalStringField(obj, "merchant")
	if err != nil {
		return nil, fmt.Errorf("parseReceiptJSON: %w", err)
	}
	currency, err := getOptionalStringField(obj, "currency")
	if err != nil {
		return nil, fmt.Errorf("parseReceiptJSON: %w", err)
	}
	subtotal, err := getDecimalField(obj, "subtotal")
	if err != nil {
		return nil, fmt.Errorf("parseReceiptJSON: %w", err)
	}
	total, err := getDecimalField(obj, "total")
	if err != nil {
		return nil, fmt.Errorf("parseReceiptJSON: %w", err)
	}
	tax, err := getOptionalDecimalField(obj, "tax")
	if err != nil {
		return nil, fmt.Errorf("parseReceiptJSON: %w", err)
	}
	txTimeStr, err := getOptionalStringField(obj, "transaction_time")
	if err != nil {
		return nil, fmt.Errorf("parseReceiptJSON: %w", err)
	}

	payload := &receipt.ReceiptPayload{
		Currency: defaultCurrency,
		Subtotal: subtotal,
		Total:    total,
		Tax:      tax,
		Items:    []receipt.ExpenseLineItem{},
		Notes:    []string{},
		Source:   receipt.DefaultSource,
	}
	if merchant != nil {
		payload.Merchant = *merchant
	}
	if currency != nil {
		payload.Currency = strings.ToUpper(*currency)
	}
	if txTimeStr != nil {
		ts, err := parseTransactionTime(*txTimeStr)
		if err != nil {
			return nil, fmt.Errorf("parseReceiptJSON: %w", err)
		}
		payload.TransactionTime = &ts
	}

	itemsAny, ok := obj["items"]
	if ok && itemsAny != nil {
		itemSlice, ok := itemsAny.([]interface{})
		if !ok {
			return nil, fmt.Errorf("parseReceiptJSON: 'items' is %T, want array", itemsAny)
		}
		for i, raw := range itemSlice {
			item, err := transformItem(raw)
			if err != nil {
				return nil, fmt.Errorf("parseReceiptJSON: item %d: %w", i, err)
			}
			payload.Items = append(payload.Items, item)
		}
	}

	if notesAny, ok := obj["notes"].([]interface{}); ok {
		for _, n := range notesAny {
			if s, ok := n.(string); ok && strings.TrimSpace(s) != "" {
				payload.Notes = append(payload.Notes, s)
			}
		}
	}

	return payload, nil
}

func transformItem(raw interface{}) (receipt.ExpenseLineItem, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return receipt.ExpenseLineItem{}, fmt.Errorf("element is %T, want object", raw)
	}

	label, err := getStringField(obj, "label", true)
	if err != nil {
		return receipt.ExpenseLineItem{}, err
	}
	category, err := getStringField(obj, "category", true)
	if err != nil {
		return receipt.ExpenseLineItem{}, err
	}
	amount, err := getDecimalField(obj, "amount")
	if err != nil {
		return receipt.ExpenseLineItem{}, err
	}

	confidence := 1.0
	conf, err := getOptionalDecimalField(obj, "confidence")
	if err != nil {
		return receipt.ExpenseLineItem{}, err
	}
	if conf.Valid {
		confidence = conf.Decimal.InexactFloat64()
	}

	return receipt.NewExpenseLineItem(label, category, amount, confidence)
}

func parseTransactionTime(s string) (time.Time, error) {
	for _, layout := range transactionTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid transaction_time %q", s)
}

// cleanModelJSON strips Markdown fences and text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return strings.TrimSpace(val), nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getDecimalField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	d, err := getOptionalDecimalField(m, key)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.Valid {
		return decimal.Zero, fmt.Errorf("missing required field %q", key)
	}
	return d.Decimal, nil
}

func getOptionalDecimalField(m map[string]interface{}, key string) (decimal.NullDecimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.NullDecimal{}, nil
	}
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("field %q: %w", key, err)
		}
		return decimal.NewNullDecimal(d), nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(val)), nil
	case string:
		// Models sometimes quote numbers.
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("field %q has non-numeric value %q", key, val)
		}
		return decimal.NewNullDecimal(d), nil
	default:
		return decimal.NullDecimal{}, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}
