// Package store records waist measurements in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id        TEXT PRIMARY KEY,
		device            TEXT,
		pixel_pitch_mm    DOUBLE,
		started_at        BIGINT
	);
	CREATE TABLE IF NOT EXISTS waists (
		session_id        TEXT,
		sequence          BIGINT,
		captured_at       BIGINT,
		waist_x_mm        DOUBLE,
		waist_y_mm        DOUBLE,
		center_x_px       DOUBLE,
		center_y_px       DOUBLE,
		aoi_x_min         INTEGER,
		aoi_x_max         INTEGER,
		aoi_y_min         INTEGER,
		aoi_y_max         INTEGER,
		exposure_ms       DOUBLE,
		FOREIGN KEY(session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS waists_session_time ON waists(session_id, captured_at);
`

// ErrNoSession is returned by Record on a store opened with OpenExisting.
var ErrNoSession = errors.New("store: no active session")

// Measurement is one successful two-axis fit.
type Measurement struct {
	Sequence   uint64
	CapturedAt time.Time
	WaistX     float64 // mm
	WaistY     float64 // mm
	CenterX    float64 // px, sensor coordinates
	CenterY    float64
	AOIXMin    int
	AOIXMax    int
	AOIYMin    int
	AOIYMax    int
	ExposureMS float64
}

// Session describes one acquisition run.
type Session struct {
	ID           string
	Device       string
	PixelPitchMM float64
	StartedAt    time.Time
}

// WaistStore appends measurements for a single session.
type WaistStore struct {
	*sql.DB
	session string
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return db, nil
}

// Open creates the schema if needed and starts a new session.
func Open(path, device string, pixelPitchMM float64) (*WaistStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s := &WaistStore{DB: db, session: uuid.NewString()}
	_, err = db.Exec(
		`INSERT INTO sessions (session_id, device, pixel_pitch_mm, started_at) VALUES (?, ?, ?, ?)`,
		s.session, device, pixelPitchMM, time.Now().UnixNano(),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return s, nil
}

// OpenExisting opens a database written by Open without starting a session.
// Record fails on the returned store.
func OpenExisting(path string) (*WaistStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &WaistStore{DB: db}, nil
}

// SessionID returns the id of the session opened by Open.
func (s *WaistStore) SessionID() string { return s.session }

// Record appends m to the current session.
func (s *WaistStore) Record(ctx context.Context, m Measurement) error {
	if s.session == "" {
		return ErrNoSession
	}
	_, err := s.ExecContext(ctx,
		`INSERT INTO waists (
			session_id, sequence, captured_at, waist_x_mm, waist_y_mm,
			center_x_px, center_y_px, aoi_x_min, aoi_x_max, aoi_y_min, aoi_y_max,
			exposure_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.session, int64(m.Sequence), m.CapturedAt.UnixNano(), m.WaistX, m.WaistY,
		m.CenterX, m.CenterY, m.AOIXMin, m.AOIXMax, m.AOIYMin, m.AOIYMax,
		m.ExposureMS,
	)
	if err != nil {
		return fmt.Errorf("store: record waist: %w", err)
	}
	return nil
}

// Measurements returns the measurements of session in capture order. An
// empty session selects the current one.
func (s *WaistStore) Measurements(ctx context.Context, session string) ([]Measurement, error) {
	if session == "" {
		session = s.session
	}
	rows, err := s.QueryContext(ctx,
		`SELECT sequence, captured_at, waist_x_mm, waist_y_mm, center_x_px, center_y_px,
			aoi_x_min, aoi_x_max, aoi_y_min, aoi_y_max, exposure_ms
		FROM waists WHERE session_id = ? ORDER BY captured_at, sequence`, session)
	if err != nil {
		return nil, fmt.Errorf("store: query waists: %w", err)
	}
	defer rows.Close()
	var out []Measurement
	for rows.Next() {
		var m Measurement
		var seq, at int64
		if err := rows.Scan(&seq, &at, &m.WaistX, &m.WaistY, &m.CenterX, &m.CenterY,
			&m.AOIXMin, &m.AOIXMax, &m.AOIYMin, &m.AOIYMax, &m.ExposureMS); err != nil {
			return nil, fmt.Errorf("store: scan waist: %w", err)
		}
		m.Sequence = uint64(seq)
		m.CapturedAt = time.Unix(0, at)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Sessions lists every recorded session, newest first.
func (s *WaistStore) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT session_id, device, pixel_pitch_mm, started_at FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: query sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var ss Session
		var at int64
		if err := rows.Scan(&ss.ID, &ss.Device, &ss.PixelPitchMM, &at); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		ss.StartedAt = time.Unix(0, at)
		out = append(out, ss)
	}
	return out, rows.Err()
}
