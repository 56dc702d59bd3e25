package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sjawhar/meetscribe/internal/transcribe"
)

// PostgresStore keeps meeting records in PostgreSQL. Merges lock the row with
// SELECT ... FOR UPDATE so concurrent ingest paths apply one after the other.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS meetings (
	meeting_id    TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	transcript    TEXT NOT NULL DEFAULT '',
	summary       TEXT NOT NULL DEFAULT '',
	speakers_json JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	file_name     TEXT NOT NULL DEFAULT '',
	duration      DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_meetings_created_at ON meetings(created_at DESC);
`

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) MergePartial(ctx context.Context, id, title string, partial transcribe.Result) (Meeting, error) {
	if strings.TrimSpace(id) == "" {
		return Meeting{}, errors.New("meeting id is required")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Meeting{}, fmt.Errorf("begin merge for meeting %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Create-if-absent first so that the row lock below covers the first
	// merge as well.
	tag, err := tx.Exec(ctx,
		`INSERT INTO meetings(meeting_id, title, created_at) VALUES($1, $2, $3) ON CONFLICT (meeting_id) DO NOTHING`,
		id, title, time.Now().UTC(),
	)
	if err != nil {
		return Meeting{}, fmt.Errorf("insert meeting %s: %w", id, err)
	}
	created := tag.RowsAffected() == 1

	m, err := scanPgMeeting(tx.QueryRow(ctx, pgSelectMeetingSQL+` WHERE meeting_id = $1 FOR UPDATE`, id))
	if err != nil {
		return Meeting{}, fmt.Errorf("load meeting %s: %w", id, err)
	}

	if created {
		m.Transcript = partial.Text
	} else {
		m.Transcript = mergeTranscript(m.Transcript, partial.Text)
	}
	m.Speakers = appendSpeakers(m.Speakers, partial.Utterances)

	speakers, err := json.Marshal(speakersOrEmpty(m.Speakers))
	if err != nil {
		return Meeting{}, fmt.Errorf("encode speakers for meeting %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE meetings SET transcript = $1, speakers_json = $2 WHERE meeting_id = $3`,
		m.Transcript, speakers, id,
	); err != nil {
		return Meeting{}, fmt.Errorf("update meeting %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Meeting{}, fmt.Errorf("commit merge for meeting %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	m, err := scanPgMeeting(s.pool.QueryRow(ctx, pgSelectMeetingSQL+` WHERE meeting_id = $1`, id))
	if err != nil {
		return Meeting{}, fmt.Errorf("query meeting %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, id, summary string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE meetings SET summary = $1 WHERE meeting_id = $2`, summary, id)
	if err != nil {
		return fmt.Errorf("update summary for meeting %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveMeeting(ctx context.Context, m Meeting) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	speakers, err := json.Marshal(speakersOrEmpty(m.Speakers))
	if err != nil {
		return fmt.Errorf("encode speakers for meeting %s: %w", m.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO meetings(meeting_id, title, transcript, summary, speakers_json, created_at, file_name, duration)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (meeting_id) DO UPDATE SET
			title = EXCLUDED.title,
			transcript = EXCLUDED.transcript,
			summary = EXCLUDED.summary,
			speakers_json = EXCLUDED.speakers_json,
			file_name = EXCLUDED.file_name,
			duration = EXCLUDED.duration`,
		m.ID, m.Title, m.Transcript, m.Summary, speakers, m.CreatedAt.UTC(), m.FileName, m.Duration,
	)
	if err != nil {
		return fmt.Errorf("save meeting %s: %w", m.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListMeetings(ctx context.Context, limit int) ([]Listing, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT meeting_id, title, created_at, summary FROM meetings ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer rows.Close()

	listings := make([]Listing, 0, limit)
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.Title, &l.CreatedAt, &l.Summary); err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		l.CreatedAt = l.CreatedAt.UTC()
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting rows: %w", err)
	}
	return listings, nil
}

func (s *PostgresStore) DeleteMeeting(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM meetings WHERE meeting_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete meeting %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const pgSelectMeetingSQL = `SELECT meeting_id, title, transcript, summary, speakers_json, created_at, file_name, duration FROM meetings`

func scanPgMeeting(row pgx.Row) (Meeting, error) {
	var m Meeting
	var speakers []byte
	if err := row.Scan(&m.ID, &m.Title, &m.Transcript, &m.Summary, &speakers, &m.CreatedAt, &m.FileName, &m.Duration); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Meeting{}, ErrNotFound
		}
		return Meeting{}, err
	}
	if err := json.Unmarshal(speakers, &m.Speakers); err != nil {
		return Meeting{}, fmt.Errorf("decode speakers for meeting %s: %w", m.ID, err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}
