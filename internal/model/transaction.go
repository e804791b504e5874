package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// Transaction is a normalized transaction as supplied by the ingestion
// collaborator. The engine only ever writes back categorization fields;
// everything else is read-only.
type Transaction struct {
	Date         time.Time       `json:"date"`
	ID           string          `json:"id"`
	OrgID        string          `json:"org_id"`
	Description  string          `json:"description"`             // Raw transaction description
	MerchantName string          `json:"merchant_name,omitempty"` // Cleaned merchant name, may be empty
	MCC          string          `json:"mcc,omitempty"`           // 4-digit merchant category code, may be empty
	Currency     string          `json:"currency"`
	Source       string          `json:"source,omitempty"` // Origin system (plaid, ofx, manual, ...)
	Raw          json.RawMessage `json:"raw,omitempty"`    // Opaque passthrough from the source
	AmountCents  int64           `json:"amount_cents"`     // Positive = money in, negative = money out
}

// IsMoneyIn reports whether funds flowed into the account. The sign
// convention is load-bearing for the guardrail layer.
func (t *Transaction) IsMoneyIn() bool {
	return t.AmountCents > 0
}

// Hash creates a stable key for duplicate detection and response caching.
func (t *Transaction) Hash() string {
	data := fmt.Sprintf("%s:%s:%d:%s:%s",
		t.OrgID,
		t.Date.Format("2006-01-02"),
		t.AmountCents,
		t.MerchantName,
		t.Description)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// SearchText returns the text the rule sources match against.
func (t *Transaction) SearchText() string {
	if t.MerchantName != "" {
		return t.MerchantName + " " + t.Description
	}
	return t.Description
}
