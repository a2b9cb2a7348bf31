package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/provattrs/internal/eav"
	"github.com/alfredjeanlab/provattrs/internal/model"
)

// ErrNotFound is returned when a node or key does not exist.
var ErrNotFound = errors.New("not found")

// Collection describes one EAV row table. Scoped collections carry an owner
// column and optionally a document column on the nodes table that replaces
// the rows after migration.
type Collection struct {
	Name           string
	Table          string
	OwnerColumn    string
	DocumentColumn string
}

// Scoped reports whether rows of the collection belong to a node.
func (c Collection) Scoped() bool {
	return c.OwnerColumn != ""
}

var (
	Attributes = Collection{Name: "attributes", Table: "db_attribute", OwnerColumn: "node_id", DocumentColumn: "attributes"}
	Extras     = Collection{Name: "extras", Table: "db_extra", OwnerColumn: "node_id", DocumentColumn: "extras"}
	Settings   = Collection{Name: "settings", Table: "db_setting"}
)

// Collections lists every known collection.
var Collections = []Collection{Attributes, Extras, Settings}

// CollectionByName looks up a collection by name.
func CollectionByName(name string) (Collection, error) {
	for _, c := range Collections {
		if c.Name == name {
			return c, nil
		}
	}
	return Collection{}, fmt.Errorf("unknown collection %q", name)
}

// Scope addresses the rows of one owner within a collection. NodeID is zero
// for unscoped collections.
type Scope struct {
	Collection Collection
	NodeID     int64
}

// Validate checks that NodeID is set exactly when the collection is scoped.
func (s Scope) Validate() error {
	switch {
	case s.Collection.Table == "":
		return fmt.Errorf("scope has no collection")
	case s.Collection.Scoped() && s.NodeID <= 0:
		return fmt.Errorf("collection %s requires a node", s.Collection.Name)
	case !s.Collection.Scoped() && s.NodeID != 0:
		return fmt.Errorf("collection %s is not scoped by node", s.Collection.Name)
	}
	return nil
}

// Owner describes the scope for error messages, e.g. "node_id=42".
func (s Scope) Owner() string {
	if !s.Collection.Scoped() {
		return ""
	}
	return fmt.Sprintf("%s=%d", s.Collection.OwnerColumn, s.NodeID)
}

// Store defines the persistence interface for nodes and their EAV rows.
type Store interface {
	// Nodes
	CreateNode(ctx context.Context, node *model.Node) error
	GetNode(ctx context.Context, id int64) (*model.Node, error)
	DeleteNode(ctx context.Context, id int64) error // cascades to rows
	GetNodeDocument(ctx context.Context, coll Collection, id int64) ([]byte, error)
	SetNodeDocument(ctx context.Context, coll Collection, id int64, doc []byte) error // merges keys

	// Rows
	InsertRows(ctx context.Context, scope Scope, rows []model.Row) error
	ListRows(ctx context.Context, scope Scope, key string) ([]model.Row, error) // key and everything below it
	ListAllRows(ctx context.Context, scope Scope) ([]model.Row, error)
	DeleteValue(ctx context.Context, scope Scope, key string, onlyChildren bool) error
	DeleteAllRows(ctx context.Context, scope Scope) error
	FindNodes(ctx context.Context, coll Collection, key string, filter eav.Filter) ([]int64, error)

	// Migration
	ListPendingNodes(ctx context.Context, coll Collection, afterID int64, limit int) ([]int64, error)
	CountPendingNodes(ctx context.Context, coll Collection) (int, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
