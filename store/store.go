// Package store defines the document store adapter the Operator Network
// core runs against, plus the implementations: a CouchDB adapter built on
// the Kivik driver and a mutex-guarded in-memory store for tests and demos.
//
// The adapter boundary normalizes everything the core should never have to
// care about: store-native timestamp representations are converted to
// time.Time on the way in, and documents travel as plain maps that decode
// into the models types via JSON round-tripping.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection names for the two persisted entity sets.
const (
	CollectionOperations = "operations"
	CollectionOperators  = "operatorProfiles"
)

// Sentinel errors returned by store implementations. Callers match with
// errors.Is and attach their own context.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict indicates a concurrent writer updated the document
	// between this caller's read and write (MVCC revision mismatch).
	ErrConflict = errors.New("document update conflict")
)

// Document is a schemaless record as the store sees it. Field names follow
// the persisted JSON layout ("status", "assigneeId", ...).
type Document map[string]interface{}

// Query identifies a filtered, ordered, bounded view over a collection.
// Filters are equality matches on top-level fields.
type Query struct {
	Filters    map[string]interface{}
	SortBy     string
	Descending bool
	Limit      int
}

// Unsubscribe releases a live query. Each capability is owned by whoever
// received it and must be invoked exactly once; the realtime package
// enforces that for view-scoped sets of subscriptions.
type Unsubscribe func()

// Store is the document database boundary of the core. Implementations must
// be safe for concurrent use.
type Store interface {
	// Get returns a single document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns all documents matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Put creates or replaces a document. Used by seeding and the
	// operation authoring flow; the lifecycle engine only patches.
	Put(ctx context.Context, collection, id string, doc Document) error

	// Update applies a partial patch to an existing document. A nil value
	// in the patch removes the field. A patch may carry the "_rev" the
	// caller observed when it read the document; implementations with MVCC
	// use it to make the write conditional on that read. Returns
	// ErrNotFound if the document does not exist and ErrConflict if a
	// concurrent write won the race.
	Update(ctx context.Context, collection, id string, patch Document) error

	// Subscribe establishes a live query. onData receives the full
	// matching result set on every relevant change; onError receives
	// feed failures. The returned capability tears the subscription down.
	Subscribe(ctx context.Context, collection string, q Query, onData func([]Document), onError func(error)) (Unsubscribe, error)

	// Close releases the underlying connection.
	Close() error
}

// Decode unmarshals a document into a typed model via JSON round-tripping.
func Decode(doc Document, out interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Encode converts a typed model into a Document.
func Encode(in interface{}) (Document, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode value into document: %w", err)
	}
	return doc, nil
}

// NormalizeTime converts the timestamp representations that show up in
// persisted documents into a time.Time. Upstream writers have historically
// produced native time values, RFC3339 strings, unix seconds, and
// Firestore-style {seconds, nanoseconds} objects; everything is folded into
// one type here so the core never sees the union.
func NormalizeTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	case int64:
		return time.Unix(t, 0).UTC(), true
	case map[string]interface{}:
		secs, ok := t["seconds"].(float64)
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := t["nanoseconds"].(float64)
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// NormalizeTimestamps rewrites every recognized timestamp field of a
// document to RFC3339 so the JSON decode into models yields time.Time
// values regardless of how the document was originally written.
func NormalizeTimestamps(doc Document) Document {
	for _, field := range timestampFields {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		if ts, ok := NormalizeTime(v); ok {
			doc[field] = ts.UTC().Format(time.RFC3339Nano)
		}
	}
	return doc
}

var timestampFields = []string{
	"createdAt", "updatedAt",
	"claimedAt", "startedAt", "submittedAt", "verifiedAt",
}
