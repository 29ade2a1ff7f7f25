package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// BucketStore persists named buckets, each holding one opaque JSON payload.
// It deliberately mirrors a browser storage bucket: whole-payload
// read/modify/write, last-write-wins, no per-record addressing and no
// locking. All ordering and merge guarantees are layered on top of it by
// QueryStore, never provided here.
type BucketStore struct {
	db *sql.DB

	// onChange, when set, is invoked after every successful Put with the
	// bucket name. It is the storage-change event: the writer's own view
	// does not consume it, other open views do.
	onChange func(bucket string)
}

func NewBucketStore(dataSourceName string) (*BucketStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &BucketStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *BucketStore) Close() error {
	return s.db.Close()
}

func (s *BucketStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS buckets (
        name TEXT PRIMARY KEY,
        payload TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// OnChange registers the broadcast callback fired after each Put.
func (s *BucketStore) OnChange(fn func(bucket string)) {
	s.onChange = fn
}

// Get returns the raw payload of a bucket, or nil if the bucket has never
// been written.
func (s *BucketStore) Get(bucket string) ([]byte, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM buckets WHERE name = ?", bucket).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query bucket %s: %w", bucket, err)
	}
	return []byte(payload), nil
}

// Put replaces the whole payload of a bucket.
func (s *BucketStore) Put(bucket string, payload []byte) error {
	stmt, err := s.db.Prepare(`
        INSERT INTO buckets (name, payload) VALUES (?, ?)
        ON CONFLICT(name) DO UPDATE SET payload = excluded.payload
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare bucket upsert: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(bucket, string(payload)); err != nil {
		return fmt.Errorf("failed to execute bucket upsert: %w", err)
	}

	if s.onChange != nil {
		s.onChange(bucket)
	}
	return nil
}
