package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sjawhar/meetscribe/internal/transcribe"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "meetscribe.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// MergePartial relies on a single connection serializing transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meetings (
			meeting_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			speakers_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			duration REAL NOT NULL DEFAULT 0
		);
	`); err != nil {
		return fmt.Errorf("create meetings table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_meetings_created_at ON meetings(created_at)"); err != nil {
		return fmt.Errorf("create meetings index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// MergePartial folds one partial transcription into the meeting record,
// creating it when absent. The read and the write share one transaction.
func (s *SQLiteStore) MergePartial(ctx context.Context, id, title string, partial transcribe.Result) (Meeting, error) {
	if strings.TrimSpace(id) == "" {
		return Meeting{}, errors.New("meeting id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Meeting{}, fmt.Errorf("begin merge for meeting %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	m, err := scanMeeting(tx.QueryRowContext(ctx, selectMeetingSQL+` WHERE meeting_id = ?`, id))
	switch {
	case errors.Is(err, ErrNotFound):
		m = Meeting{
			ID:         id,
			Title:      title,
			Transcript: partial.Text,
			Speakers:   appendSpeakers(nil, partial.Utterances),
			CreatedAt:  s.now(),
		}
		speakers, err := json.Marshal(speakersOrEmpty(m.Speakers))
		if err != nil {
			return Meeting{}, fmt.Errorf("encode speakers for meeting %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meetings(meeting_id, title, transcript, speakers_json, created_at) VALUES(?, ?, ?, ?, ?)`,
			m.ID, m.Title, m.Transcript, string(speakers), m.CreatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return Meeting{}, fmt.Errorf("insert meeting %s: %w", id, err)
		}
	case err != nil:
		return Meeting{}, fmt.Errorf("load meeting %s: %w", id, err)
	default:
		m.Transcript = mergeTranscript(m.Transcript, partial.Text)
		m.Speakers = appendSpeakers(m.Speakers, partial.Utterances)
		speakers, err := json.Marshal(speakersOrEmpty(m.Speakers))
		if err != nil {
			return Meeting{}, fmt.Errorf("encode speakers for meeting %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE meetings SET transcript = ?, speakers_json = ? WHERE meeting_id = ?`,
			m.Transcript, string(speakers), id,
		); err != nil {
			return Meeting{}, fmt.Errorf("update meeting %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Meeting{}, fmt.Errorf("commit merge for meeting %s: %w", id, err)
	}
	return m, nil
}

func (s *SQLiteStore) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	m, err := scanMeeting(s.db.QueryRowContext(ctx, selectMeetingSQL+` WHERE meeting_id = ?`, id))
	if err != nil {
		return Meeting{}, fmt.Errorf("query meeting %s: %w", id, err)
	}
	return m, nil
}

func (s *SQLiteStore) UpdateSummary(ctx context.Context, id, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE meetings SET summary = ? WHERE meeting_id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("update summary for meeting %s: %w", id, err)
	}
	return checkAffected(res, id)
}

// SaveMeeting inserts or fully replaces a record.
func (s *SQLiteStore) SaveMeeting(ctx context.Context, m Meeting) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	speakers, err := json.Marshal(speakersOrEmpty(m.Speakers))
	if err != nil {
		return fmt.Errorf("encode speakers for meeting %s: %w", m.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meetings(meeting_id, title, transcript, summary, speakers_json, created_at, file_name, duration)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(meeting_id) DO UPDATE SET
			title = excluded.title,
			transcript = excluded.transcript,
			summary = excluded.summary,
			speakers_json = excluded.speakers_json,
			file_name = excluded.file_name,
			duration = excluded.duration`,
		m.ID, m.Title, m.Transcript, m.Summary, string(speakers),
		m.CreatedAt.UTC().Format(time.RFC3339Nano), m.FileName, m.Duration,
	)
	if err != nil {
		return fmt.Errorf("save meeting %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListMeetings(ctx context.Context, limit int) ([]Listing, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT meeting_id, title, created_at, summary FROM meetings ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	listings := make([]Listing, 0, limit)
	for rows.Next() {
		var l Listing
		var createdAt string
		if err := rows.Scan(&l.ID, &l.Title, &createdAt, &l.Summary); err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		if l.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse meeting %s created_at: %w", l.ID, err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting rows: %w", err)
	}

	return listings, nil
}

func (s *SQLiteStore) DeleteMeeting(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE meeting_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete meeting %s: %w", id, err)
	}
	return checkAffected(res, id)
}

const selectMeetingSQL = `SELECT meeting_id, title, transcript, summary, speakers_json, created_at, file_name, duration FROM meetings`

func scanMeeting(row *sql.Row) (Meeting, error) {
	var m Meeting
	var speakers, createdAt string
	if err := row.Scan(&m.ID, &m.Title, &m.Transcript, &m.Summary, &speakers, &createdAt, &m.FileName, &m.Duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Meeting{}, ErrNotFound
		}
		return Meeting{}, err
	}

	if err := json.Unmarshal([]byte(speakers), &m.Speakers); err != nil {
		return Meeting{}, fmt.Errorf("decode speakers for meeting %s: %w", m.ID, err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Meeting{}, fmt.Errorf("parse meeting %s created_at: %w", m.ID, err)
	}
	m.CreatedAt = parsed
	return m, nil
}

func checkAffected(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for meeting %s: %w", id, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
