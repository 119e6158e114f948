package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/petitionlens/internal/model"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a petition has no classification
var ErrNotFound = errors.New("not found")

// Classification is one completed topic assignment
type Classification struct {
	PetitionID   model.PetitionID
	Topic        string
	Provider     string
	Model        string
	ClassifiedAt time.Time
}

// Ledger persists completed classifications so a restarted job never resubmits them
type Ledger struct {
	conn *sql.DB
}

// Open opens or creates the ledger database at path
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	l := &Ledger{conn: conn}
	if err := l.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return l, nil
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.conn.Close()
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classifications (
		petition_id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		classified_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_classifications_topic ON classifications(topic);
	`

	_, err := l.conn.Exec(schema)
	return err
}

// Record stores one classification, replacing any earlier one for the petition
func (l *Ledger) Record(ctx context.Context, c Classification) error {
	if c.PetitionID == "" {
		return fmt.Errorf("record classification: empty petition id")
	}
	if c.ClassifiedAt.IsZero() {
		c.ClassifiedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO classifications (petition_id, topic, provider, model, classified_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(petition_id) DO UPDATE SET
		topic = excluded.topic,
		provider = excluded.provider,
		model = excluded.model,
		classified_at = excluded.classified_at
	`
	_, err := l.conn.ExecContext(ctx, query, string(c.PetitionID), c.Topic, c.Provider, c.Model, c.ClassifiedAt)
	if err != nil {
		return fmt.Errorf("record classification %s: %w", c.PetitionID, err)
	}
	return nil
}

// Get returns the classification of a petition
func (l *Ledger) Get(ctx context.Context, id model.PetitionID) (*Classification, error) {
	row := l.conn.QueryRowContext(ctx,
		`SELECT petition_id, topic, provider, model, classified_at FROM classifications WHERE petition_id = ?`,
		string(id))

	var c Classification
	var pid string
	if err := row.Scan(&pid, &c.Topic, &c.Provider, &c.Model, &c.ClassifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get classification %s: %w", id, err)
	}
	c.PetitionID = model.PetitionID(pid)
	return &c, nil
}

// Has reports whether a petition is already classified
func (l *Ledger) Has(ctx context.Context, id model.PetitionID) (bool, error) {
	var one int
	err := l.conn.QueryRowContext(ctx, `SELECT 1 FROM classifications WHERE petition_id = ?`, string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check classification %s: %w", id, err)
	}
	return true, nil
}

// Count returns the number of classified petitions
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM classifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count classifications: %w", err)
	}
	return n, nil
}

// TopicMap exports every classification as a petition to topic mapping
func (l *Ledger) TopicMap(ctx context.Context) (model.TopicMap, error) {
	rows, err := l.conn.QueryContext(ctx, `SELECT petition_id, topic FROM classifications`)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	out := make(model.TopicMap)
	for rows.Next() {
		var id, topic string
		if err := rows.Scan(&id, &topic); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		out[model.PetitionID(id)] = topic
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classifications: %w", err)
	}
	return out, nil
}

// Import seeds the ledger from an existing topic map without overwriting entries already present.
// It returns the number of rows added.
func (l *Ledger) Import(ctx context.Context, topics model.TopicMap, source string) (int, error) {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO classifications (petition_id, topic, provider, model, classified_at)
	VALUES (?, ?, ?, '', ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	added := 0
	for id, topic := range topics {
		if id == "" || topic == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, string(id), topic, source, now)
		if err != nil {
			return 0, fmt.Errorf("import %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return added, nil
}
