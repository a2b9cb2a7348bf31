package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/provattrs/internal/model"
)

// header is the first JSONL record written by ExportRowsJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Collection string    `json:"collection"`
	Timestamp  time.Time `json:"timestamp"`
	NodeCount  int       `json:"node_count"`
	RowCount   int       `json:"row_count"`
}

// record holds the rows of one owner.
type record struct {
	Type   string      `json:"type"`
	NodeID int64       `json:"node_id"`
	Rows   []model.Row `json:"rows"`
}

// ExportRowsJSONL writes the rows of several owners as JSONL to w. Records
// are sorted by node id; rows keep the order they were given in.
func ExportRowsJSONL(w io.Writer, collection, runID string, rows map[int64][]model.Row) error {
	ids := make([]int64, 0, len(rows))
	total := 0
	for id, rs := range rows {
		ids = append(ids, id)
		total += len(rs)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		RunID:      runID,
		Collection: collection,
		Timestamp:  time.Now().UTC(),
		NodeCount:  len(ids),
		RowCount:   total,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, id := range ids {
		if err := enc.Encode(record{Type: "rows", NodeID: id, Rows: rows[id]}); err != nil {
			return fmt.Errorf("encode rows of node %d: %w", id, err)
		}
	}
	return nil
}

// SnapshotName returns the object name of a batch snapshot, e.g.
// "mig-abc/attributes/000000000001-000000000500.jsonl".
func SnapshotName(runID, collection string, firstNode, lastNode int64) string {
	return fmt.Sprintf("%s/%s/%012d-%012d.jsonl", runID, collection, firstNode, lastNode)
}
