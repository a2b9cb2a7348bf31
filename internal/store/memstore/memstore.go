// Package memstore implements store.Store in memory. Transactions run
// against a copy of the state that replaces it only on success.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/provattrs/internal/eav"
	"github.com/alfredjeanlab/provattrs/internal/model"
	"github.com/alfredjeanlab/provattrs/internal/store"
)

// Store is an in-memory store.Store safe for concurrent use.
type Store struct {
	mu sync.Mutex
	st *state
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// state holds nodes and, per table and owner, the rows keyed by key.
// Unscoped tables use owner 0.
type state struct {
	nextID int64
	nodes  map[int64]*model.Node
	rows   map[string]map[int64]map[string]model.Row
}

func newState() *state {
	return &state{
		nodes: make(map[int64]*model.Node),
		rows:  make(map[string]map[int64]map[string]model.Row),
	}
}

func (st *state) clone() *state {
	c := &state{
		nextID: st.nextID,
		nodes:  make(map[int64]*model.Node, len(st.nodes)),
		rows:   make(map[string]map[int64]map[string]model.Row, len(st.rows)),
	}
	for id, n := range st.nodes {
		cp := *n
		c.nodes[id] = &cp
	}
	for table, owners := range st.rows {
		co := make(map[int64]map[string]model.Row, len(owners))
		for owner, rows := range owners {
			co[owner] = maps.Clone(rows)
		}
		c.rows[table] = co
	}
	return c
}

func (s *Store) CreateNode(ctx context.Context, node *model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createNode(node)
}

func (s *Store) GetNode(ctx context.Context, id int64) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getNode(id)
}

func (s *Store) DeleteNode(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteNode(id)
}

func (s *Store) GetNodeDocument(ctx context.Context, coll store.Collection, id int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getNodeDocument(coll, id)
}

func (s *Store) SetNodeDocument(ctx context.Context, coll store.Collection, id int64, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.setNodeDocument(coll, id, doc)
}

func (s *Store) InsertRows(ctx context.Context, scope store.Scope, rows []model.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.insertRows(scope, rows)
}

func (s *Store) ListRows(ctx context.Context, scope store.Scope, key string) ([]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listRows(scope, func(k string) bool { return model.HasPrefixKey(k, key) })
}

func (s *Store) ListAllRows(ctx context.Context, scope store.Scope) ([]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listRows(scope, func(string) bool { return true })
}

func (s *Store) DeleteValue(ctx context.Context, scope store.Scope, key string, onlyChildren bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteValue(scope, key, onlyChildren)
}

func (s *Store) DeleteAllRows(ctx context.Context, scope store.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteAllRows(scope)
}

func (s *Store) FindNodes(ctx context.Context, coll store.Collection, key string, filter eav.Filter) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.findNodes(coll, key, filter)
}

func (s *Store) ListPendingNodes(ctx context.Context, coll store.Collection, afterID int64, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listPendingNodes(coll, afterID, limit)
}

func (s *Store) CountPendingNodes(ctx context.Context, coll store.Collection) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.st.listPendingNodes(coll, 0, 0)
	return len(ids), err
}

// RunInTransaction runs fn against a copy of the state while holding the
// store lock, and installs the copy only if fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{st: s.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// txStore implements store.Store over a transaction's private state. The
// enclosing Store holds its lock for the lifetime of the transaction.
type txStore struct {
	st *state
}

var _ store.Store = (*txStore)(nil)

func (t *txStore) CreateNode(ctx context.Context, node *model.Node) error {
	return t.st.createNode(node)
}

func (t *txStore) GetNode(ctx context.Context, id int64) (*model.Node, error) {
	return t.st.getNode(id)
}

func (t *txStore) DeleteNode(ctx context.Context, id int64) error {
	return t.st.deleteNode(id)
}

func (t *txStore) GetNodeDocument(ctx context.Context, coll store.Collection, id int64) ([]byte, error) {
	return t.st.getNodeDocument(coll, id)
}

func (t *txStore) SetNodeDocument(ctx context.Context, coll store.Collection, id int64, doc []byte) error {
	return t.st.setNodeDocument(coll, id, doc)
}

func (t *txStore) InsertRows(ctx context.Context, scope store.Scope, rows []model.Row) error {
	return t.st.insertRows(scope, rows)
}

func (t *txStore) ListRows(ctx context.Context, scope store.Scope, key string) ([]model.Row, error) {
	return t.st.listRows(scope, func(k string) bool { return model.HasPrefixKey(k, key) })
}

func (t *txStore) ListAllRows(ctx context.Context, scope store.Scope) ([]model.Row, error) {
	return t.st.listRows(scope, func(string) bool { return true })
}

func (t *txStore) DeleteValue(ctx context.Context, scope store.Scope, key string, onlyChildren bool) error {
	return t.st.deleteValue(scope, key, onlyChildren)
}

func (t *txStore) DeleteAllRows(ctx context.Context, scope store.Scope) error {
	return t.st.deleteAllRows(scope)
}

func (t *txStore) FindNodes(ctx context.Context, coll store.Collection, key string, filter eav.Filter) ([]int64, error) {
	return t.st.findNodes(coll, key, filter)
}

func (t *txStore) ListPendingNodes(ctx context.Context, coll store.Collection, afterID int64, limit int) ([]int64, error) {
	return t.st.listPendingNodes(coll, afterID, limit)
}

func (t *txStore) CountPendingNodes(ctx context.Context, coll store.Collection) (int, error) {
	ids, err := t.st.listPendingNodes(coll, 0, 0)
	return len(ids), err
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (t *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *txStore) Close() error {
	return nil
}

func (st *state) createNode(n *model.Node) error {
	if n.UUID == "" {
		n.UUID = uuid.NewString()
	}
	for _, existing := range st.nodes {
		if existing.UUID == n.UUID {
			return &model.UniquenessConflictError{Table: "db_node", Key: n.UUID}
		}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	st.nextID++
	n.ID = st.nextID
	cp := *n
	st.nodes[n.ID] = &cp
	return nil
}

func (st *state) getNode(id int64) (*model.Node, error) {
	n, ok := st.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, store.ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

func (st *state) deleteNode(id int64) error {
	if _, ok := st.nodes[id]; !ok {
		return fmt.Errorf("node %d: %w", id, store.ErrNotFound)
	}
	delete(st.nodes, id)
	for _, owners := range st.rows {
		delete(owners, id)
	}
	return nil
}

func document(n *model.Node, coll store.Collection) (*json.RawMessage, error) {
	switch coll.DocumentColumn {
	case "attributes":
		return &n.Attributes, nil
	case "extras":
		return &n.Extras, nil
	}
	return nil, fmt.Errorf("collection %s has no document column", coll.Name)
}

func (st *state) getNodeDocument(coll store.Collection, id int64) ([]byte, error) {
	n, ok := st.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, store.ErrNotFound)
	}
	doc, err := document(n, coll)
	if err != nil {
		return nil, err
	}
	if len(*doc) == 0 {
		return []byte(`{}`), nil
	}
	return append([]byte(nil), *doc...), nil
}

func (st *state) setNodeDocument(coll store.Collection, id int64, data []byte) error {
	n, ok := st.nodes[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, store.ErrNotFound)
	}
	doc, err := document(n, coll)
	if err != nil {
		return err
	}

	merged := make(map[string]json.RawMessage)
	if len(*doc) > 0 {
		if err := json.Unmarshal(*doc, &merged); err != nil {
			return fmt.Errorf("decode stored document: %w", err)
		}
	}
	var update map[string]json.RawMessage
	if err := json.Unmarshal(data, &update); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	maps.Copy(merged, update)

	out, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	*doc = out
	return nil
}

func (st *state) owner(scope store.Scope) (map[string]model.Row, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if scope.Collection.Scoped() {
		if _, ok := st.nodes[scope.NodeID]; !ok {
			return nil, fmt.Errorf("node %d: %w", scope.NodeID, store.ErrNotFound)
		}
	}
	owners, ok := st.rows[scope.Collection.Table]
	if !ok {
		owners = make(map[int64]map[string]model.Row)
		st.rows[scope.Collection.Table] = owners
	}
	rows, ok := owners[scope.NodeID]
	if !ok {
		rows = make(map[string]model.Row)
		owners[scope.NodeID] = rows
	}
	return rows, nil
}

func (st *state) insertRows(scope store.Scope, rows []model.Row) error {
	existing, err := st.owner(scope)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if _, dup := existing[r.Key]; dup || seen[r.Key] {
			return &model.UniquenessConflictError{Table: scope.Collection.Table, Key: r.Key}
		}
		seen[r.Key] = true
	}
	for _, r := range rows {
		existing[r.Key] = r
	}
	return nil
}

func (st *state) listRows(scope store.Scope, match func(string) bool) ([]model.Row, error) {
	rows, err := st.owner(scope)
	if err != nil {
		return nil, err
	}
	var out []model.Row
	for k, r := range rows {
		if match(k) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (st *state) deleteValue(scope store.Scope, key string, onlyChildren bool) error {
	rows, err := st.owner(scope)
	if err != nil {
		return err
	}
	for k := range rows {
		if model.HasPrefixKey(k, key) && !(onlyChildren && k == key) {
			delete(rows, k)
		}
	}
	return nil
}

func (st *state) deleteAllRows(scope store.Scope) error {
	rows, err := st.owner(scope)
	if err != nil {
		return err
	}
	clear(rows)
	return nil
}

func (st *state) findNodes(coll store.Collection, key string, filter eav.Filter) ([]int64, error) {
	if !coll.Scoped() {
		return nil, fmt.Errorf("collection %s is not scoped by node", coll.Name)
	}
	var ids []int64
	for id, rows := range st.rows[coll.Table] {
		r, ok := rows[key]
		if ok && r.Datatype == filter.Datatype && matches(r, filter) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func matches(r model.Row, f eav.Filter) bool {
	switch f.Column {
	case "":
		return true
	case "bval":
		return r.BVal != nil && *r.BVal == f.Arg
	case "ival":
		return r.IVal != nil && *r.IVal == f.Arg
	case "fval":
		return r.FVal != nil && *r.FVal == f.Arg
	case "tval":
		return r.TVal == f.Arg
	case "dval":
		t, ok := f.Arg.(time.Time)
		return ok && r.DVal != nil && r.DVal.Equal(t)
	}
	return false
}

// listPendingNodes returns ids above afterID that still own rows. A limit
// of zero means no limit.
func (st *state) listPendingNodes(coll store.Collection, afterID int64, limit int) ([]int64, error) {
	if !coll.Scoped() {
		return nil, fmt.Errorf("collection %s is not scoped by node", coll.Name)
	}
	var ids []int64
	for id, rows := range st.rows[coll.Table] {
		if id > afterID && len(rows) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
