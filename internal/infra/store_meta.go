package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

const daemonKey = "daemon_state"

// --- domain.DaemonRegistry implementation ---

// Register records the running daemon, replacing any previous entry.
func (s *Store) Register(ctx context.Context, state domain.DaemonState) error {
	if state.LastHeartbeat.IsZero() {
		state.LastHeartbeat = state.StartedAt
	}
	return s.putMeta(ctx, daemonKey, state)
}

// UpdateHeartbeat refreshes the liveness timestamp of run runID.
func (s *Store) UpdateHeartbeat(ctx context.Context, runID string, at time.Time) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var raw string
		if err := tx.GetContext(ctx, &raw, `SELECT value FROM meta WHERE key = ?`, daemonKey); err != nil {
			return fmt.Errorf("daemon %s not registered: %w", runID, domain.ErrNotFound)
		}
		state, err := decodeDaemonState(raw)
		if err != nil {
			return err
		}
		if state.RunID != runID {
			return fmt.Errorf("daemon %s replaced by %s: %w", runID, state.RunID, domain.ErrConflict)
		}
		state.LastHeartbeat = at
		data, err := encodeDaemonState(state)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE meta SET value = ? WHERE key = ?`, data, daemonKey)
		return err
	})
}

// Get returns the registered daemon, nil when none.
func (s *Store) Get(ctx context.Context) (*domain.DaemonState, error) {
	var state domain.DaemonState
	found, err := s.getMeta(ctx, daemonKey, &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// Clear removes the daemon entry (clean shutdown).
func (s *Store) Clear(ctx context.Context) error {
	return s.deleteMeta(ctx, daemonKey)
}

func encodeDaemonState(state domain.DaemonState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal daemon state: %w", err)
	}
	return string(data), nil
}

func decodeDaemonState(raw string) (domain.DaemonState, error) {
	var state domain.DaemonState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return state, fmt.Errorf("decode daemon state: %w", err)
	}
	return state, nil
}
