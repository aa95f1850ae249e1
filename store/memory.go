package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store used by the test suites and the demo
// server. All state lives behind one mutex; change fan-out to subscribers
// happens synchronously inside the write path, which makes tests
// deterministic and mirrors the single-threaded delivery model of the
// production change feed.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	subscribers map[string][]*memorySub
	nextSubID   int
}

type memorySub struct {
	id      int
	query   Query
	onData  func([]Document)
	onError func(error)
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		subscribers: make(map[string][]*memorySub),
	}
}

// Get returns a copy of the stored document, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(doc), nil
}

// Query evaluates filters, sort, and limit over the collection.
func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryLocked(collection, q), nil
}

// Put creates or replaces a document and notifies matching subscribers.
func (m *Memory) Put(ctx context.Context, collection, id string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Document)
	}
	stored := copyDocument(doc)
	stored["_id"] = id
	m.collections[collection][id] = stored

	m.notifyLocked(collection)
	return nil
}

// Update applies a partial patch. Nil patch values delete the field.
func (m *Memory) Update(ctx context.Context, collection, id string, patch Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = copyValue(v)
	}

	m.notifyLocked(collection)
	return nil
}

// Subscribe registers a live query. The current result set is delivered
// immediately, then again after every write to the collection. The returned
// capability is idempotent at the store level; exactly-once invocation
// across a view's set of capabilities is the realtime manager's job.
func (m *Memory) Subscribe(ctx context.Context, collection string, q Query, onData func([]Document), onError func(error)) (Unsubscribe, error) {
	m.mu.Lock()
	m.nextSubID++
	sub := &memorySub{id: m.nextSubID, query: q, onData: onData, onError: onError}
	m.subscribers[collection] = append(m.subscribers[collection], sub)
	initial := m.queryLocked(collection, q)
	m.mu.Unlock()

	if onData != nil {
		onData(initial)
	}

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[collection]
		for i, s := range subs {
			if s.id == sub.id {
				m.subscribers[collection] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return unsubscribe, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

func (m *Memory) queryLocked(collection string, q Query) []Document {
	var results []Document
	for _, doc := range m.collections[collection] {
		if matches(doc, q.Filters) {
			results = append(results, copyDocument(doc))
		}
	}

	if q.SortBy != "" {
		sort.SliceStable(results, func(i, j int) bool {
			less := compareValues(results[i][q.SortBy], results[j][q.SortBy])
			if q.Descending {
				return !less
			}
			return less
		})
	} else {
		// Deterministic order for tests even without an explicit sort.
		sort.SliceStable(results, func(i, j int) bool {
			return compareValues(results[i]["_id"], results[j]["_id"])
		})
	}

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

// notifyLocked re-runs every subscriber's query and delivers the fresh
// result set. Must be called with the mutex held; callbacks run after a
// snapshot is taken so they execute outside the critical section.
func (m *Memory) notifyLocked(collection string) {
	subs := m.subscribers[collection]
	type delivery struct {
		onData func([]Document)
		docs   []Document
	}
	deliveries := make([]delivery, 0, len(subs))
	for _, sub := range subs {
		if sub.onData == nil {
			continue
		}
		deliveries = append(deliveries, delivery{sub.onData, m.queryLocked(collection, sub.query)})
	}

	m.mu.Unlock()
	for _, d := range deliveries {
		d.onData(d.docs)
	}
	m.mu.Lock()
}

func matches(doc Document, filters map[string]interface{}) bool {
	for field, want := range filters {
		got, ok := doc[field]
		if !ok {
			return false
		}
		if normalizeScalar(got) != normalizeScalar(want) {
			return false
		}
	}
	return true
}

// normalizeScalar folds numeric types so a filter written with an int
// matches a value decoded from JSON as float64.
func normalizeScalar(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case string:
		return n
	default:
		return v
	}
}

func compareValues(a, b interface{}) bool {
	an := normalizeScalar(a)
	bn := normalizeScalar(b)
	if af, ok := an.(float64); ok {
		if bf, ok := bn.(float64); ok {
			return af < bf
		}
	}
	if as, ok := an.(string); ok {
		if bs, ok := bn.(string); ok {
			return strings.Compare(as, bs) < 0
		}
	}
	return false
}

func copyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Document:
		return copyDocument(val)
	case map[string]interface{}:
		return copyDocument(Document(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
