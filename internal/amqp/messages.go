package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ReceiptRouteMessage asks the worker to route one journal entry into the
// ledger. The receipt itself stays in the journal.
type ReceiptRouteMessage struct {
	JournalID int64     `json:"journal_id"`
	TabTitle  string    `json:"tab_title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReceiptRouteMessage(journalID int64, tabTitle string) *ReceiptRouteMessage {
	return &ReceiptRouteMessage{
		JournalID: journalID,
		TabTitle:  tabTitle,
		Timestamp: time.Now(),
	}
}

func (m *ReceiptRouteMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReceiptRouteMessageFromJSON decodes a message body. A missing or
// non-positive journal ID is an error.
func ReceiptRouteMessageFromJSON(data []byte) (*ReceiptRouteMessage, error) {
	var msg ReceiptRouteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.JournalID <= 0 {
		return nil, errors.New("message has no journal id")
	}
	return &msg, nil
}
