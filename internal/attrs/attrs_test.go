package attrs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/provattrs/internal/events"
	"github.com/alfredjeanlab/provattrs/internal/model"
	"github.com/alfredjeanlab/provattrs/internal/store"
	"github.com/alfredjeanlab/provattrs/internal/store/memstore"
)

type fixture struct {
	svc   *Service
	store *memstore.Store
	rec   *events.Recorder
	logs  *bytes.Buffer
	scope store.Scope
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ms := memstore.New()
	node := &model.Node{NodeType: "data.Dict"}
	if err := ms.CreateNode(context.Background(), node); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	rec := &events.Recorder{}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	return &fixture{
		svc:   New(ms, rec, logger, opts),
		store: ms,
		rec:   rec,
		logs:  &logs,
		scope: store.Scope{Collection: store.Attributes, NodeID: node.ID},
	}
}

func sample() model.Value {
	return model.Dict{
		"a":       model.Text("b"),
		"sublist": model.List{model.Int(1), model.Int(2), model.Int(3)},
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.svc.Set(ctx, f.scope, "attr", sample(), SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := f.svc.Get(ctx, f.scope, "attr")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !model.Equal(got, sample()) {
		t.Errorf("Get = %#v, want %#v", got, sample())
	}

	sub, err := f.svc.Get(ctx, f.scope, "attr.sublist")
	if err != nil {
		t.Fatalf("Get nested: %v", err)
	}
	if !model.Equal(sub, model.List{model.Int(1), model.Int(2), model.Int(3)}) {
		t.Errorf("Get nested = %#v", sub)
	}

	if topics := f.rec.Topics(); len(topics) != 1 || topics[0] != events.TopicValueSet {
		t.Errorf("topics = %v", topics)
	}
	ev := f.rec.Events()[0].Event.(events.ValueSet)
	if ev.Key != "attr" || ev.Datatype != "dict" || ev.Rows != 6 || ev.NodeID != f.scope.NodeID {
		t.Errorf("event = %+v", ev)
	}
}

func TestSet_ReplacesWithoutStaleChildren(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.svc.Set(ctx, f.scope, "attr", sample(), SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := f.svc.Set(ctx, f.scope, "attr", model.Dict{"only": model.Null{}}, SetOptions{}); err != nil {
		t.Fatalf("Set again: %v", err)
	}

	rows, err := f.store.ListRows(ctx, f.scope, "attr")
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after overwrite, got %d: %+v", len(rows), rows)
	}
	if _, err := f.svc.Get(ctx, f.scope, "attr.sublist"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("stale child still readable: err = %v", err)
	}
}

func TestSet_StopIfExisting(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.svc.Set(ctx, f.scope, "attr", model.Int(1), SetOptions{StopIfExisting: true}); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	err := f.svc.Set(ctx, f.scope, "attr", model.Int(2), SetOptions{StopIfExisting: true})
	if !errors.Is(err, model.ErrUniquenessConflict) {
		t.Fatalf("err = %v, want uniqueness conflict", err)
	}
	var conflict *model.UniquenessConflictError
	if !errors.As(err, &conflict) || conflict.Key != "attr" {
		t.Errorf("conflict = %+v", conflict)
	}

	got, err := f.svc.Get(ctx, f.scope, "attr")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != model.Int(1) {
		t.Errorf("old value changed to %#v", got)
	}
	if n := len(f.rec.Topics()); n != 1 {
		t.Errorf("expected one event, got %d", n)
	}
}

func TestSet_InvalidInputDoesNoIO(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	for _, tc := range []struct {
		name  string
		key   string
		value model.Value
	}{
		{"EmptyKey", "", model.Int(1)},
		{"DottedKey", "a.b", model.Int(1)},
		{"DottedMember", "attr", model.Dict{"x.y": model.Int(1)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.Set(ctx, f.scope, tc.key, tc.value, SetOptions{})
			var invalid *model.InvalidKeyError
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want InvalidKeyError", err)
			}
		})
	}
	rows, err := f.store.ListAllRows(ctx, f.scope)
	if err != nil {
		t.Fatalf("ListAllRows: %v", err)
	}
	if len(rows) != 0 || len(f.rec.Topics()) != 0 {
		t.Errorf("invalid input touched the store: rows=%d events=%d", len(rows), len(f.rec.Topics()))
	}
}

func TestSetManyAndReset(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	err := f.svc.SetMany(ctx, f.scope, map[string]model.Value{
		"b": model.Text("two"),
		"a": model.Int(1),
	})
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	ev := f.rec.Events()
	if len(ev) != 2 || ev[0].Event.(events.ValueSet).Key != "a" || ev[1].Event.(events.ValueSet).Key != "b" {
		t.Errorf("events not in key order: %+v", ev)
	}

	if err := f.svc.Reset(ctx, f.scope, map[string]model.Value{"c": model.Bool(false)}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	all, err := f.svc.GetAll(ctx, f.scope)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 1 || all["c"] != model.Bool(false) {
		t.Errorf("GetAll after Reset = %#v", all)
	}
}

func TestSetMany_AtomicOnEncodeError(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	err := f.svc.SetMany(ctx, f.scope, map[string]model.Value{
		"good": model.Int(1),
		"bad":  model.JSONDoc(`{not json`),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if all, _ := f.svc.GetAll(ctx, f.scope); len(all) != 0 {
		t.Errorf("partial write: %#v", all)
	}
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Get(context.Background(), f.scope, "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	_, err = f.svc.Get(context.Background(), f.scope, "a..b")
	var invalid *model.InvalidKeyError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidKeyError", err)
	}
}

func TestGetAll_LenientLogsWarnings(t *testing.T) {
	ctx := context.Background()
	corrupt := []model.Row{
		{Key: "l", Datatype: model.TypeList, IVal: ptr[int64](1)},
		{Key: "l.0", Datatype: model.TypeText, TVal: "kept"},
		{Key: "l.1", Datatype: model.TypeText, TVal: "surplus"},
	}

	strict := newFixture(t, Options{})
	if err := strict.store.InsertRows(ctx, strict.scope, corrupt); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	_, err := strict.svc.GetAll(ctx, strict.scope)
	var de *model.DeserializationError
	if !errors.As(err, &de) {
		t.Fatalf("strict err = %v, want DeserializationError", err)
	}
	if de.Source != "db_attribute" || de.Owner != strict.scope.Owner() {
		t.Errorf("error context = %+v", de)
	}

	lenient := newFixture(t, Options{Lenient: true})
	if err := lenient.store.InsertRows(ctx, lenient.scope, corrupt); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	all, err := lenient.svc.GetAll(ctx, lenient.scope)
	if err != nil {
		t.Fatalf("lenient GetAll: %v", err)
	}
	if !model.Equal(all["l"], model.List{model.Text("kept")}) {
		t.Errorf("lenient value = %#v", all["l"])
	}
	if !strings.Contains(lenient.logs.String(), "inconsistent stored value") {
		t.Errorf("expected warning in logs, got %q", lenient.logs.String())
	}
}

func TestDeleteAndDeleteChildren(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.svc.Set(ctx, f.scope, "attr", sample(), SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := f.svc.DeleteChildren(ctx, f.scope, "attr.sublist"); err != nil {
		t.Fatalf("DeleteChildren: %v", err)
	}
	rows, _ := f.store.ListRows(ctx, f.scope, "attr.sublist")
	if len(rows) != 1 || rows[0].Key != "attr.sublist" {
		t.Errorf("rows after DeleteChildren = %+v", rows)
	}

	if err := f.svc.Delete(ctx, f.scope, "attr"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.svc.Delete(ctx, f.scope, "attr"); err != nil {
		t.Fatalf("Delete of missing key: %v", err)
	}
	if all, _ := f.svc.GetAll(ctx, f.scope); len(all) != 0 {
		t.Errorf("values left after Delete: %#v", all)
	}

	var deleted []events.ValueDeleted
	for _, e := range f.rec.Events() {
		if e.Topic == events.TopicValueDeleted {
			deleted = append(deleted, e.Event.(events.ValueDeleted))
		}
	}
	if len(deleted) != 3 || !deleted[0].OnlyChildren || deleted[1].OnlyChildren {
		t.Errorf("delete events = %+v", deleted)
	}
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{Location: time.UTC})
	other := &model.Node{NodeType: "data.Dict"}
	if err := f.store.CreateNode(ctx, other); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	otherScope := store.Scope{Collection: store.Attributes, NodeID: other.ID}

	_ = f.svc.Set(ctx, f.scope, "energy", model.Float(-1.5), SetOptions{})
	_ = f.svc.Set(ctx, otherScope, "energy", model.Float(2), SetOptions{})

	ids, err := f.svc.Find(ctx, store.Attributes, "energy", model.Float(-1.5))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(ids) != 1 || ids[0] != f.scope.NodeID {
		t.Errorf("Find = %v, want [%d]", ids, f.scope.NodeID)
	}

	if _, err := f.svc.Find(ctx, store.Attributes, "energy", model.List{}); err == nil {
		t.Error("expected error searching for a list")
	}
}

func TestDocument(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	doc, err := f.svc.Document(ctx, store.Attributes, f.scope.NodeID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("expected empty document, got %#v", doc)
	}

	if err := f.store.SetNodeDocument(ctx, store.Attributes, f.scope.NodeID, []byte(`{"x":1.0,"y":"NaN"}`)); err != nil {
		t.Fatalf("SetNodeDocument: %v", err)
	}
	doc, err = f.svc.Document(ctx, store.Attributes, f.scope.NodeID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["x"] != model.Float(1) || doc["y"] != model.Text("NaN") {
		t.Errorf("Document = %#v", doc)
	}
}

func ptr[T any](v T) *T { return &v }
