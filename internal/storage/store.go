// Package storage persists wavelets, blips, participants, and the
// operation history backing each blip, via PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store wraps a pooled PostgreSQL connection.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and verifies it with a ping.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureWavelet records a wavelet if it is not already present.
func (s *Store) EnsureWavelet(ctx context.Context, waveID, waveletID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wavelets (wave_id, wavelet_id) VALUES ($1, $2)
		 ON CONFLICT (wave_id, wavelet_id) DO NOTHING`,
		waveID, waveletID)
	if err != nil {
		return fmt.Errorf("storage: ensure wavelet: %w", err)
	}
	return nil
}

// AddParticipant records a participant joining a wavelet.
func (s *Store) AddParticipant(ctx context.Context, waveID, waveletID string, p ParticipantRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (wave_id, wavelet_id, id, username, color, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (wave_id, wavelet_id, id) DO NOTHING`,
		waveID, waveletID, p.ID, p.Username, p.Color, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("storage: add participant: %w", err)
	}
	return nil
}

// RemoveParticipant records a participant leaving a wavelet.
func (s *Store) RemoveParticipant(ctx context.Context, waveID, waveletID, participantID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM participants WHERE wave_id = $1 AND wavelet_id = $2 AND id = $3`,
		waveID, waveletID, participantID)
	if err != nil {
		return fmt.Errorf("storage: remove participant: %w", err)
	}
	return nil
}

// ParticipantRecord is the persisted shape of internal/editor.Participant.
type ParticipantRecord struct {
	ID       string    `db:"id"`
	Username string    `db:"username"`
	Color    string    `db:"color"`
	JoinedAt time.Time `db:"joined_at"`
}

// Participants returns every participant recorded for a wavelet.
func (s *Store) Participants(ctx context.Context, waveID, waveletID string) ([]ParticipantRecord, error) {
	var out []ParticipantRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, username, color, joined_at FROM participants WHERE wave_id = $1 AND wavelet_id = $2`,
		waveID, waveletID)
	if err != nil {
		return nil, fmt.Errorf("storage: list participants: %w", err)
	}
	return out, nil
}

// BlipRecord is the persisted, materialized state of a blip.
type BlipRecord struct {
	ID      string `db:"id"`
	Content string `db:"content"`
	Version int    `db:"version"`
}

// GetBlip loads a blip's materialized content and version, or reports
// found=false if it has never been saved.
func (s *Store) GetBlip(ctx context.Context, waveID, waveletID, blipID string) (rec BlipRecord, found bool, err error) {
	err = s.db.GetContext(ctx, &rec,
		`SELECT id, content, version FROM blips WHERE wave_id = $1 AND wavelet_id = $2 AND id = $3`,
		waveID, waveletID, blipID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BlipRecord{}, false, nil
		}
		return BlipRecord{}, false, fmt.Errorf("storage: get blip: %w", err)
	}
	return rec, true, nil
}

// SaveBlip upserts a blip's current materialized content and version and
// appends the batch that produced it to the operation history.
func (s *Store) SaveBlip(ctx context.Context, waveID, waveletID, blipID string, content string, version int, ops []map[string]any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin save blip: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO blips (wave_id, wavelet_id, id, content, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (wave_id, wavelet_id, id)
		 DO UPDATE SET content = EXCLUDED.content, version = EXCLUDED.version, updated_at = now()`,
		waveID, waveletID, blipID, content, version)
	if err != nil {
		return fmt.Errorf("storage: upsert blip: %w", err)
	}

	payload, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("storage: marshal ops: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO blip_operations (wave_id, wavelet_id, blip_id, version, ops)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (wave_id, wavelet_id, blip_id, version) DO NOTHING`,
		waveID, waveletID, blipID, version, payload)
	if err != nil {
		return fmt.Errorf("storage: insert blip operation history: %w", err)
	}

	return tx.Commit()
}

// OperationsSince returns the serialized op batches applied to a blip after
// version, ordered by version, for rebuilding Blip.history after a restart.
func (s *Store) OperationsSince(ctx context.Context, waveID, waveletID, blipID string, version int) ([][]map[string]any, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT ops FROM blip_operations
		 WHERE wave_id = $1 AND wavelet_id = $2 AND blip_id = $3 AND version > $4
		 ORDER BY version ASC`,
		waveID, waveletID, blipID, version)
	if err != nil {
		return nil, fmt.Errorf("storage: operations since: %w", err)
	}
	defer rows.Close()

	var out [][]map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage: scan operation history: %w", err)
		}
		var batch []map[string]any
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, fmt.Errorf("storage: unmarshal operation history: %w", err)
		}
		out = append(out, batch)
	}
	return out, rows.Err()
}
