package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // CouchDB driver registration
	"github.com/sirupsen/logrus"
)

// CouchConfig configures the CouchDB-backed store. Collections map to one
// database with a "collection" discriminator field on every document, which
// keeps a single changes feed covering both entity sets.
type CouchConfig struct {
	URL             string // CouchDB server URL, e.g. http://localhost:5984
	Database        string // database name
	Username        string // authentication username
	Password        string // authentication password
	CreateIfMissing bool   // create the database on first connect
	Heartbeat       int    // changes feed heartbeat in milliseconds
}

// Couch is the production Store implementation on CouchDB via Kivik.
//
// Concurrency: every Update carries the revision observed by its own read,
// so a lost race surfaces as ErrConflict instead of silently winning with
// last-write-wins. The lifecycle engine maps that conflict back into its
// transition taxonomy.
type Couch struct {
	client    *kivik.Client
	database  *kivik.DB
	dbName    string
	heartbeat int
	log       *logrus.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewCouch connects to CouchDB and returns a store bound to the configured
// database. Credentials are injected into the URL when not already present.
func NewCouch(ctx context.Context, config CouchConfig, log *logrus.Logger) (*Couch, error) {
	connectionURL := config.URL
	if config.Username != "" && config.Password != "" && !strings.Contains(connectionURL, "@") {
		parts := strings.SplitN(connectionURL, "://", 2)
		if len(parts) == 2 {
			connectionURL = fmt.Sprintf("%s://%s:%s@%s", parts[0], config.Username, config.Password, parts[1])
		}
	}

	client, err := kivik.New("couch", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	exists, err := client.DBExists(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to check if database exists: %w", err)
	}
	if !exists {
		if !config.CreateIfMissing {
			return nil, fmt.Errorf("database %s does not exist", config.Database)
		}
		if err := client.CreateDB(ctx, config.Database); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	heartbeat := config.Heartbeat
	if heartbeat == 0 {
		heartbeat = 60000
	}

	return &Couch{
		client:    client,
		database:  client.DB(config.Database),
		dbName:    config.Database,
		heartbeat: heartbeat,
		log:       log,
	}, nil
}

// docID namespaces a logical collection id into the shared database.
func docID(collection, id string) string {
	return collection + ":" + id
}

// Get retrieves a document by collection and id.
func (c *Couch) Get(ctx context.Context, collection, id string) (Document, error) {
	row := c.database.Get(ctx, docID(collection, id))

	var doc Document
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}
	doc["_id"] = id
	return NormalizeTimestamps(doc), nil
}

// Query runs a Mango find over the collection.
func (c *Couch) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	selector := map[string]interface{}{
		"collection": collection,
	}
	for field, value := range q.Filters {
		selector[field] = value
	}

	params := make(map[string]interface{})
	if q.SortBy != "" {
		direction := "asc"
		if q.Descending {
			direction = "desc"
		}
		params["sort"] = []map[string]string{{q.SortBy: direction}}
	}
	if q.Limit > 0 {
		params["limit"] = q.Limit
	}

	rows := c.database.Find(ctx, selector, kivik.Params(params))
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var doc Document
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if rawID, ok := doc["_id"].(string); ok {
			doc["_id"] = strings.TrimPrefix(rawID, collection+":")
		}
		results = append(results, NormalizeTimestamps(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find query failed: %w", err)
	}
	return results, nil
}

// Put creates or replaces a document, fetching the current revision first
// so replacement of an existing document succeeds.
func (c *Couch) Put(ctx context.Context, collection, id string, doc Document) error {
	stored := make(Document, len(doc)+2)
	for k, v := range doc {
		stored[k] = v
	}
	stored["_id"] = docID(collection, id)
	stored["collection"] = collection

	if rev, err := c.currentRev(ctx, collection, id); err == nil && rev != "" {
		stored["_rev"] = rev
	}

	if _, err := c.database.Put(ctx, docID(collection, id), stored); err != nil {
		if kivik.HTTPStatus(err) == 409 {
			return ErrConflict
		}
		return fmt.Errorf("failed to put document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update reads the current document, applies the patch, and writes back.
// Nil patch values delete the field. A patch carrying "_rev" makes the
// write conditional on the caller's own read: the supplied revision
// replaces the freshly-read one, so CouchDB answers 409 whenever any writer
// committed after that read, which is exactly the race the lifecycle
// preconditions exist to catch. Without a supplied revision only this
// method's internal read-write window is covered.
func (c *Couch) Update(ctx context.Context, collection, id string, patch Document) error {
	row := c.database.Get(ctx, docID(collection, id))

	var doc Document
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == 404 {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read document %s/%s for update: %w", collection, id, err)
	}

	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = normalizePatchValue(v)
	}

	if _, err := c.database.Put(ctx, docID(collection, id), doc); err != nil {
		if kivik.HTTPStatus(err) == 409 {
			return ErrConflict
		}
		return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Subscribe runs a continuous filtered changes feed in a goroutine. Every
// matching change triggers a re-query of the full result set, which is then
// delivered to onData. The returned capability cancels the feed context;
// cancellation is idempotent, so Close firing the same cancel is safe.
func (c *Couch) Subscribe(ctx context.Context, collection string, q Query, onData func([]Document), onError func(error)) (Unsubscribe, error) {
	feedCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()

	// Deliver the initial result set before the feed starts so a view is
	// never blank while waiting for the first change.
	initial, err := c.Query(ctx, collection, q)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to run initial query for subscription: %w", err)
	}
	if onData != nil {
		onData(initial)
	}

	go func() {
		params := map[string]interface{}{
			"feed":      "continuous",
			"since":     "now",
			"heartbeat": c.heartbeat,
			"filter":    "_selector",
			"selector":  map[string]interface{}{"collection": collection},
		}
		changes := c.database.Changes(feedCtx, kivik.Params(params))
		defer changes.Close()

		for changes.Next() {
			if feedCtx.Err() != nil {
				return
			}

			results, err := c.Query(feedCtx, collection, q)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onData != nil {
				onData(results)
			}
		}
		if err := changes.Err(); err != nil && feedCtx.Err() == nil {
			c.log.WithError(err).Error("changes feed terminated")
			if onError != nil {
				onError(fmt.Errorf("changes feed error: %w", err))
			}
		}
	}()

	return Unsubscribe(cancel), nil
}

// Close stops all active feeds and closes the client connection.
func (c *Couch) Close() error {
	c.mu.Lock()
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Couch) currentRev(ctx context.Context, collection, id string) (string, error) {
	row := c.database.Get(ctx, docID(collection, id))
	var doc Document
	if err := row.ScanDoc(&doc); err != nil {
		return "", err
	}
	rev, _ := doc["_rev"].(string)
	return rev, nil
}

// normalizePatchValue converts Go-native patch values into their persisted
// JSON form, so timestamps written by the engine land as RFC3339 strings.
func normalizePatchValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
