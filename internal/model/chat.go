package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ChatRequest represents one user utterance sent to the assistant
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message" binding:"required"`
}

// TurnResult is what the presentation layer receives for one user turn
type TurnResult struct {
	SessionID     string              `json:"session_id"`
	Turn          int64               `json:"turn"`
	State         string              `json:"state"`
	Message       string              `json:"message,omitempty"`
	Quote         *Quote              `json:"quote,omitempty"`
	Verdicts      []ValidationVerdict `json:"verdicts,omitempty"`
	FilteredCount int                 `json:"filtered_count"`
	Warnings      []string            `json:"warnings,omitempty"`
	Budget        *decimal.Decimal    `json:"budget,omitempty"`
	Attempts      int                 `json:"attempts"`
	Took          int64               `json:"took_ms"`
}

// HistoryEntry is one message of the visible chat history
type HistoryEntry struct {
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionView is the public snapshot of a conversation
type SessionView struct {
	SessionID string           `json:"session_id"`
	Budget    *decimal.Decimal `json:"budget,omitempty"`
	History   []HistoryEntry   `json:"history"`
	Turns     int64            `json:"turns"`
	CreatedAt time.Time        `json:"created_at"`
}

// ValidateRequest asks for a stateless validation of a quote. Either Raw
// (generator text) or Quote must be provided.
type ValidateRequest struct {
	Raw    string           `json:"raw,omitempty"`
	Quote  *Quote           `json:"quote,omitempty"`
	Budget *decimal.Decimal `json:"budget,omitempty"`
}

// ValidateResponse reports the verdicts and the options that survive selection
type ValidateResponse struct {
	Quote         *Quote              `json:"quote"`
	Verdicts      []ValidationVerdict `json:"verdicts"`
	Selected      []QuoteOption       `json:"selected"`
	FilteredCount int                 `json:"filtered_count"`
	IsValid       bool                `json:"is_valid"`
}

// FeedbackRequest records what the customer did with a proposed option
type FeedbackRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	Turn        int64  `json:"turn" binding:"required"`
	OptionTitle string `json:"option_title" binding:"required"`
	Action      string `json:"action" binding:"required,oneof=view whatsapp buy"`
}

// FeedbackResponse represents feedback response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TurnRecord is a persisted user turn
type TurnRecord struct {
	ID             int64       `json:"id" db:"id"`
	SessionID      string      `json:"session_id" db:"session_id"`
	Turn           int64       `json:"turn" db:"turn"`
	UserText       string      `json:"user_text" db:"user_text"`
	Budget         *string     `json:"budget,omitempty" db:"budget"`
	State          string      `json:"state" db:"state"`
	Attempts       int         `json:"attempts" db:"attempts"`
	FilteredCount  int         `json:"filtered_count" db:"filtered_count"`
	Quote          QuoteJSON   `json:"quote,omitempty" db:"quote"`
	Warnings       StringArray `json:"warnings,omitempty" db:"warnings"`
	ResponseTimeMs int         `json:"response_time_ms" db:"response_time_ms"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// QuoteJSON stores a quote in a JSONB column
type QuoteJSON struct {
	Quote *Quote
}

// Value implements driver.Valuer interface
func (q QuoteJSON) Value() (driver.Value, error) {
	if q.Quote == nil {
		return nil, nil
	}
	raw, err := json.Marshal(q.Quote)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner interface
func (q *QuoteJSON) Scan(value interface{}) error {
	if value == nil {
		q.Quote = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported quote column type %T", value)
	}
	var quote Quote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return err
	}
	q.Quote = &quote
	return nil
}

// MarshalJSON renders the wrapped quote directly
func (q QuoteJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Quote)
}

// StringArray represents a JSON array field
type StringArray []string

// Value implements driver.Valuer interface
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner interface
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), a)
	}
	return json.Unmarshal(bytes, a)
}
