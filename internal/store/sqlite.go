// ABOUTME: SQLite-backed room store
// ABOUTME: Persists room records with modernc.org/sqlite so rooms survive restarts
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syncroom/syncroom/internal/playback"

	_ "modernc.org/sqlite"
)

const schemaRooms = `
CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	host_id TEXT NOT NULL,
	track_id TEXT NOT NULL DEFAULT '',
	is_playing INTEGER NOT NULL DEFAULT 0,
	reference_start INTEGER,
	current_track TEXT,
	queue TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	CHECK (is_playing = 1 OR reference_start IS NULL)
);
CREATE INDEX IF NOT EXISTS idx_rooms_created_at ON rooms(created_at);`

// SQLiteOptions tunes the database connection.
type SQLiteOptions struct {
	BusyTimeout time.Duration
	Synchronous string
}

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(path string, options SQLiteOptions) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	synchronous := options.Synchronous
	if synchronous == "" {
		synchronous = "NORMAL"
	}
	busyTimeout := options.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = 5 * time.Second
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA synchronous=%s", synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", int(busyTimeout/time.Millisecond)),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaRooms); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateRoom(ctx context.Context, room Room) (err error) {
	row, err := encodeRoom(room)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM rooms WHERE id = ?`, room.ID).Scan(&exists); err != nil {
		return fmt.Errorf("storage: check room %s: %w", room.ID, err)
	}
	if exists > 0 {
		return ErrRoomExists
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, name, host_id, track_id, is_playing, reference_start, current_track, queue, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row...); err != nil {
		return fmt.Errorf("storage: insert room %s: %w", room.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func (s *SQLite) GetRoom(ctx context.Context, id string) (Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, host_id, track_id, is_playing, reference_start, current_track, queue, created_at, updated_at
		FROM rooms WHERE id = ?
	`, id)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("storage: get room %s: %w", id, err)
	}
	return room, nil
}

func (s *SQLite) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, host_id, track_id, is_playing, reference_start, current_track, queue, created_at, updated_at
		FROM rooms ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *SQLite) SaveRoom(ctx context.Context, room Room) error {
	row, err := encodeRoom(room)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET
			name = ?,
			host_id = ?,
			track_id = ?,
			is_playing = ?,
			reference_start = ?,
			current_track = ?,
			queue = ?,
			updated_at = ?
		WHERE id = ?
	`, row[1], row[2], row[3], row[4], row[5], row[6], row[7], row[9], row[0])
	if err != nil {
		return fmt.Errorf("storage: save room %s: %w", room.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *SQLite) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete room %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// encodeRoom returns the column values in table order.
func encodeRoom(room Room) ([]any, error) {
	var current sql.NullString
	if room.Current != nil {
		data, err := json.Marshal(room.Current)
		if err != nil {
			return nil, fmt.Errorf("storage: encode current track: %w", err)
		}
		current = sql.NullString{String: string(data), Valid: true}
	}

	queue := room.Queue
	if queue == nil {
		queue = []Track{}
	}
	queueData, err := json.Marshal(queue)
	if err != nil {
		return nil, fmt.Errorf("storage: encode queue: %w", err)
	}

	var refStart sql.NullInt64
	if ms := playback.UnixMillis(room.Playback.ReferenceStart); ms != nil && room.Playback.IsPlaying {
		refStart = sql.NullInt64{Int64: *ms, Valid: true}
	}

	playing := 0
	if room.Playback.IsPlaying && refStart.Valid {
		playing = 1
	}

	return []any{
		room.ID,
		room.Name,
		room.HostID,
		room.Playback.TrackID,
		playing,
		refStart,
		current,
		string(queueData),
		room.CreatedAt.UnixMilli(),
		room.UpdatedAt.UnixMilli(),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (Room, error) {
	var (
		room      Room
		playing   int
		refStart  sql.NullInt64
		current   sql.NullString
		queueData string
		createdAt int64
		updatedAt int64
	)

	if err := row.Scan(
		&room.ID,
		&room.Name,
		&room.HostID,
		&room.Playback.TrackID,
		&playing,
		&refStart,
		&current,
		&queueData,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Room{}, err
	}

	if refStart.Valid {
		room.Playback.ReferenceStart = playback.FromUnixMillis(&refStart.Int64)
	}
	// A malformed reference start reads back as "not playing".
	room.Playback.IsPlaying = playing == 1 && room.Playback.ReferenceStart != nil
	if !room.Playback.IsPlaying {
		room.Playback.ReferenceStart = nil
	}

	if current.Valid && current.String != "" {
		var track Track
		if err := json.Unmarshal([]byte(current.String), &track); err != nil {
			return Room{}, fmt.Errorf("decode current track: %w", err)
		}
		room.Current = &track
	}

	if err := json.Unmarshal([]byte(queueData), &room.Queue); err != nil {
		return Room{}, fmt.Errorf("decode queue: %w", err)
	}
	if len(room.Queue) == 0 {
		room.Queue = nil
	}

	room.CreatedAt = time.UnixMilli(createdAt)
	room.UpdatedAt = time.UnixMilli(updatedAt)
	return room, nil
}
