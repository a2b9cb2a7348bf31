package model

import (
	"encoding/json"
	"time"
)

// Node is a graph node that owns attribute and extra rows and, once
// migrated, the equivalent JSON documents.
type Node struct {
	ID         int64           `json:"id"`
	UUID       string          `json:"uuid"`
	NodeType   string          `json:"node_type"`
	Label      string          `json:"label,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
}
