package events

import (
	"context"
	"time"
)

// Event topic constants
const (
	TopicValueSet     = "attrs.value.set"
	TopicValueDeleted = "attrs.value.deleted"

	// Migration progress
	TopicMigrationBatch  = "attrs.migration.batch"
	TopicMigrationFailed = "attrs.migration.failed"
	TopicMigrationDone   = "attrs.migration.done"
)

// Event types

type ValueSet struct {
	Collection string `json:"collection"`
	NodeID     int64  `json:"node_id,omitempty"`
	Key        string `json:"key"`
	Datatype   string `json:"datatype"`
	Rows       int    `json:"rows"`
}

type ValueDeleted struct {
	Collection   string `json:"collection"`
	NodeID       int64  `json:"node_id,omitempty"`
	Key          string `json:"key"`
	OnlyChildren bool   `json:"only_children,omitempty"`
}

// Migration events

type MigrationBatch struct {
	RunID      string `json:"run_id"`
	Collection string `json:"collection"`
	FirstNode  int64  `json:"first_node"`
	LastNode   int64  `json:"last_node"`
	Migrated   int    `json:"migrated"`
	Failed     int    `json:"failed"`
	Remaining  int    `json:"remaining"`
}

type MigrationFailed struct {
	RunID      string `json:"run_id"`
	Collection string `json:"collection"`
	NodeID     int64  `json:"node_id"`
	Key        string `json:"key,omitempty"`
	Error      string `json:"error"`
}

type MigrationDone struct {
	RunID    string        `json:"run_id"`
	Migrated int           `json:"migrated"`
	Failed   int           `json:"failed"`
	Warnings int           `json:"warnings"`
	Duration time.Duration `json:"duration"`
	Aborted  bool          `json:"aborted,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
