package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	_ "github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/types"
)

type PostgresStore struct {
	db *sql.DB
	mu sync.RWMutex
	// In-memory cache for fast reads
	latestByDocument map[string]types.SyncEvent
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{
		db:               db,
		latestByDocument: make(map[string]types.SyncEvent),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.loadCache(); err != nil {
		klog.ErrorS(err, "Failed to load sync history cache")
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	-- Documents: one row per edited document, pointing at its current resource
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		namespace TEXT,
		name TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT NOW(),
		updated_at TIMESTAMP DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_documents_resource ON documents(kind, namespace, name);

	-- Sync events: append-only reconciliation history
	CREATE TABLE IF NOT EXISTS sync_events (
		id BIGSERIAL PRIMARY KEY,
		document TEXT NOT NULL,
		kind TEXT NOT NULL,
		namespace TEXT,
		name TEXT NOT NULL,
		resource_version TEXT,
		verdict TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sync_events_document ON sync_events(document, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_sync_events_verdict ON sync_events(verdict);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresStore) Record(event types.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, kind, namespace, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET
			updated_at = NOW(),
			kind = EXCLUDED.kind,
			namespace = EXCLUDED.namespace,
			name = EXCLUDED.name
	`, event.Document, event.Kind, event.Namespace, event.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_events (document, kind, namespace, name, resource_version, verdict, action, detail, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.Document, event.Kind, event.Namespace, event.Name, event.Version,
		event.Verdict, string(event.Action), event.Detail, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert sync event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.latestByDocument[event.Document] = event
	return nil
}

func (s *PostgresStore) Latest(document string) (types.SyncEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, exists := s.latestByDocument[document]
	return event, exists
}

func (s *PostgresStore) History(document string, limit int) []types.SyncEvent {
	query := `
		SELECT document, kind, namespace, name, resource_version, verdict, action, detail, timestamp
		FROM sync_events
		WHERE document = $1
		ORDER BY timestamp DESC, id DESC
	`
	args := []interface{}{document}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		klog.ErrorS(err, "Failed to query sync history", "document", document)
		return nil
	}
	defer rows.Close()

	events := make([]types.SyncEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	return events
}

func (s *PostgresStore) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	documents := make([]string, 0, len(s.latestByDocument))
	for document := range s.latestByDocument {
		documents = append(documents, document)
	}
	sort.Strings(documents)
	return documents
}

// CountByVerdict returns how many recorded events carry each verdict.
func (s *PostgresStore) CountByVerdict() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT verdict, COUNT(*) FROM sync_events GROUP BY verdict`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var verdict string
		var count int
		if err := rows.Scan(&verdict, &count); err != nil {
			return nil, err
		}
		counts[verdict] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (types.SyncEvent, error) {
	var event types.SyncEvent
	var namespace, version, detail sql.NullString
	var action string
	if err := row.Scan(&event.Document, &event.Kind, &namespace, &event.Name, &version,
		&event.Verdict, &action, &detail, &event.Timestamp); err != nil {
		return types.SyncEvent{}, err
	}
	event.Namespace = namespace.String
	event.Version = version.String
	event.Detail = detail.String
	event.Action = types.Action(action)
	return event, nil
}

func (s *PostgresStore) loadCache() error {
	rows, err := s.db.Query(`
		SELECT DISTINCT ON (document)
			document, kind, namespace, name, resource_version, verdict, action, detail, timestamp
		FROM sync_events
		ORDER BY document, timestamp DESC, id DESC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			continue
		}
		s.latestByDocument[event.Document] = event
	}

	klog.InfoS("Loaded sync history cache", "documents", len(s.latestByDocument))
	return rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}
