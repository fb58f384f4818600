package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Event types appended by the gradebook engine.
const (
	TypeStudentCreated = "StudentCreated"
	TypeClassChanged   = "ClassChanged"
	TypeLevelCreated   = "LevelCreated"
)

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string // natural key, e.g. student:42
	DataJSON  string
	CreatedAt int64
}

// NewEvent builds an event with a JSON payload. Marshal failures fall back to "{}".
func NewEvent(siteID, typ, key string, data interface{}) Event {
	buf, err := json.Marshal(data)
	if err != nil {
		buf = []byte("{}")
	}
	return Event{SiteID: siteID, Type: typ, Key: key, DataJSON: string(buf)}
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

type EventRepo struct{ db Execer }

func NewEventRepo(db Execer) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = "local"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Since lists events with a sequence greater than seq, oldest first.
func (r *EventRepo) Since(ctx context.Context, seq int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at
		   FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`, seq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
