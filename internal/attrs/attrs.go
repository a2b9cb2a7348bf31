// Package attrs stores nested values on nodes through the EAV codec. It is
// the write path for every collection: values are encoded before any I/O,
// replaced atomically, and read back with the decoder's consistency checks.
package attrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alfredjeanlab/provattrs/internal/document"
	"github.com/alfredjeanlab/provattrs/internal/eav"
	"github.com/alfredjeanlab/provattrs/internal/events"
	"github.com/alfredjeanlab/provattrs/internal/model"
	"github.com/alfredjeanlab/provattrs/internal/store"
)

// Options configures a Service.
type Options struct {
	// Location interprets naive dates on write and converts dates on read.
	Location *time.Location
	// Lenient downgrades surplus list entries and dict length mismatches
	// to logged warnings on read.
	Lenient bool
}

// SetOptions controls a single Set.
type SetOptions struct {
	// StopIfExisting fails with model.ErrUniquenessConflict instead of
	// replacing an existing value.
	StopIfExisting bool
}

// Service reads and writes EAV values.
type Service struct {
	store     store.Store
	encoder   *eav.Encoder
	opts      Options
	publisher events.Publisher
	logger    *slog.Logger
}

// New returns a Service backed by s. A nil publisher disables events and a
// nil logger uses slog.Default().
func New(s store.Store, p events.Publisher, logger *slog.Logger, opts Options) *Service {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		store:     s,
		encoder:   eav.NewEncoder(opts.Location),
		opts:      opts,
		publisher: p,
		logger:    logger,
	}
}

// Set stores value under key, replacing whatever subtree was there.
func (s *Service) Set(ctx context.Context, scope store.Scope, key string, value model.Value, opts SetOptions) error {
	rows, err := s.encoder.Encode(key, value)
	if err != nil {
		return err
	}
	err = s.store.RunInTransaction(ctx, func(tx store.Store) error {
		return s.replace(ctx, tx, scope, key, rows, !opts.StopIfExisting)
	})
	if err != nil {
		return err
	}
	s.publishSet(ctx, scope, key, rows)
	return nil
}

// SetMany stores several values in one transaction. Keys are written in
// sorted order.
func (s *Service) SetMany(ctx context.Context, scope store.Scope, values map[string]model.Value) error {
	return s.setAll(ctx, scope, values, false)
}

// Reset replaces every value of the scope with values in one transaction.
func (s *Service) Reset(ctx context.Context, scope store.Scope, values map[string]model.Value) error {
	return s.setAll(ctx, scope, values, true)
}

func (s *Service) setAll(ctx context.Context, scope store.Scope, values map[string]model.Value, reset bool) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	encoded := make([][]model.Row, len(keys))
	for i, k := range keys {
		rows, err := s.encoder.Encode(k, values[k])
		if err != nil {
			return err
		}
		encoded[i] = rows
	}

	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if reset {
			if err := tx.DeleteAllRows(ctx, scope); err != nil {
				return fmt.Errorf("clearing %s: %w", scope.Collection.Name, err)
			}
		}
		for i, k := range keys {
			if err := s.replace(ctx, tx, scope, k, encoded[i], !reset); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, k := range keys {
		s.publishSet(ctx, scope, k, encoded[i])
	}
	return nil
}

func (s *Service) replace(ctx context.Context, tx store.Store, scope store.Scope, key string, rows []model.Row, deleteOld bool) error {
	if deleteOld {
		if err := tx.DeleteValue(ctx, scope, key, false); err != nil {
			return fmt.Errorf("deleting old value of %q: %w", key, err)
		}
	}
	if err := tx.InsertRows(ctx, scope, rows); err != nil {
		var conflict *model.UniquenessConflictError
		if errors.As(err, &conflict) && conflict.Key == "" {
			conflict.Key = key
		}
		return err
	}
	return nil
}

// Get returns the value stored at key. Nested keys such as "attr.sublist"
// return the part of a value below the top-level key. A missing key is
// reported as store.ErrNotFound.
func (s *Service) Get(ctx context.Context, scope store.Scope, key string) (model.Value, error) {
	if err := validatePath(key); err != nil {
		return nil, err
	}
	rows, err := s.store.ListRows(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	v, warnings, err := eav.DecodeSubtree(key, rows, s.decodeOptions(scope))
	if errors.Is(err, eav.ErrKeyNotFound) {
		return nil, fmt.Errorf("key %q: %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.logWarnings(scope, warnings)
	return v, nil
}

// GetAll returns every top-level value of the scope.
func (s *Service) GetAll(ctx context.Context, scope store.Scope) (map[string]model.Value, error) {
	rows, err := s.store.ListAllRows(ctx, scope)
	if err != nil {
		return nil, err
	}
	res, err := eav.Decode(rows, s.decodeOptions(scope))
	if err != nil {
		return nil, err
	}
	s.logWarnings(scope, res.Warnings)
	return res.Values, nil
}

// Document returns the migrated document form of a node's collection.
func (s *Service) Document(ctx context.Context, coll store.Collection, nodeID int64) (map[string]model.Value, error) {
	data, err := s.store.GetNodeDocument(ctx, coll, nodeID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]model.Value{}, nil
	}
	return document.Unmarshal(data)
}

// Delete removes key and everything below it. Deleting a missing key is not
// an error.
func (s *Service) Delete(ctx context.Context, scope store.Scope, key string) error {
	return s.delete(ctx, scope, key, false)
}

// DeleteChildren removes everything below key but keeps its own row.
func (s *Service) DeleteChildren(ctx context.Context, scope store.Scope, key string) error {
	return s.delete(ctx, scope, key, true)
}

func (s *Service) delete(ctx context.Context, scope store.Scope, key string, onlyChildren bool) error {
	if err := validatePath(key); err != nil {
		return err
	}
	if err := s.store.DeleteValue(ctx, scope, key, onlyChildren); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, events.TopicValueDeleted, events.ValueDeleted{
		Collection:   scope.Collection.Name,
		NodeID:       scope.NodeID,
		Key:          key,
		OnlyChildren: onlyChildren,
	}); err != nil {
		s.logger.Warn("failed to publish event", "topic", events.TopicValueDeleted, "key", key, "err", err)
	}
	return nil
}

// Find returns the nodes whose value at key equals value. Only scalar
// values can be searched.
func (s *Service) Find(ctx context.Context, coll store.Collection, key string, value model.Value) ([]int64, error) {
	if err := validatePath(key); err != nil {
		return nil, err
	}
	filter, err := s.encoder.QueryFilter(value)
	if err != nil {
		return nil, err
	}
	return s.store.FindNodes(ctx, coll, key, filter)
}

func (s *Service) decodeOptions(scope store.Scope) eav.Options {
	return eav.Options{
		Lenient:  s.opts.Lenient,
		Location: s.opts.Location,
		Source:   scope.Collection.Table,
		Owner:    scope.Owner(),
	}
}

func (s *Service) logWarnings(scope store.Scope, warnings []eav.Warning) {
	for _, w := range warnings {
		s.logger.Warn("inconsistent stored value",
			"collection", scope.Collection.Name,
			"node_id", scope.NodeID,
			"key", w.Key,
			"warning", w.Message,
		)
	}
}

func (s *Service) publishSet(ctx context.Context, scope store.Scope, key string, rows []model.Row) {
	event := events.ValueSet{
		Collection: scope.Collection.Name,
		NodeID:     scope.NodeID,
		Key:        key,
		Datatype:   rows[0].Datatype.String(),
		Rows:       len(rows),
	}
	if err := s.publisher.Publish(ctx, events.TopicValueSet, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", events.TopicValueSet, "key", key, "err", err)
	}
}

// validatePath checks every segment of a possibly nested key.
func validatePath(key string) error {
	if key == "" {
		return model.ValidateKey(key)
	}
	for _, seg := range strings.Split(key, model.Separator) {
		if seg == "" {
			return &model.InvalidKeyError{Key: key, Reason: "the key has an empty segment"}
		}
	}
	return nil
}
