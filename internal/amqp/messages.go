package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/core"
)

// IncomePostedMessage announces a posting that is already committed to the
// ledger. Consumers treat it as a notification and may see it more than once.
type IncomePostedMessage struct {
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	SourceID      string    `json:"source_id,omitempty"`
	Date          string    `json:"date"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency,omitempty"`
	Description   string    `json:"description,omitempty"`
	AutoAdded     bool      `json:"auto_added"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewIncomePostedMessage(userID string, tx core.IncomeTransaction) *IncomePostedMessage {
	return &IncomePostedMessage{
		UserID:        userID,
		TransactionID: tx.ID,
		SourceID:      tx.SourceID,
		Date:          tx.Date.String(),
		AmountCents:   tx.Amount.Cents,
		Currency:      tx.Currency,
		Description:   tx.Description,
		AutoAdded:     tx.AutoAdded,
		Timestamp:     time.Now(),
	}
}

// Transaction rebuilds the ledger row carried by the message.
func (m *IncomePostedMessage) Transaction() (core.IncomeTransaction, error) {
	day, err := core.ParseDate(m.Date)
	if err != nil {
		return core.IncomeTransaction{}, fmt.Errorf("message %s: %w", m.TransactionID, err)
	}
	return core.IncomeTransaction{
		ID:          m.TransactionID,
		SourceID:    m.SourceID,
		Amount:      core.Money{Cents: m.AmountCents},
		Currency:    m.Currency,
		Date:        day,
		Description: m.Description,
		AutoAdded:   m.AutoAdded,
	}, nil
}

func (m *IncomePostedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func IncomePostedMessageFromJSON(data []byte) (*IncomePostedMessage, error) {
	var msg IncomePostedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("message missing transaction_id or user_id")
	}
	return &msg, nil
}
