// Package state is the durable per-MAC move counter and alert-history
// store. It owns the SQLite database file; every other component
// receives it by reference and borrows it for the duration of a call.
package state

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/HerbHall/ipmi-move-auditor/internal/store"
	"github.com/HerbHall/ipmi-move-auditor/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS mac_state (
	mac_address TEXT PRIMARY KEY,
	server_name TEXT NOT NULL,
	last_ok_seen_at TEXT,
	last_observed_switch TEXT,
	last_observed_port TEXT,
	last_observed_vlan INTEGER,
	move_counter INTEGER NOT NULL DEFAULT 0,
	first_move_seen_at TEXT,
	last_move_seen_at TEXT,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	mac_address TEXT NOT NULL,
	alert_hash TEXT NOT NULL,
	sent_at TEXT NOT NULL,
	observed_switch TEXT,
	observed_port TEXT,
	is_reminder INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_mac_state_mac ON mac_state(mac_address);
CREATE INDEX IF NOT EXISTS idx_alert_history_mac ON alert_history(mac_address);
CREATE INDEX IF NOT EXISTS idx_alert_history_hash ON alert_history(alert_hash);
`

// Store tracks move counters and alert-history for deduplication.
type Store struct {
	s           *store.Store
	remindAfter time.Duration
}

// Open creates (or reuses) the SQLite file at path and ensures the
// schema exists.
func Open(path string, remindAfter time.Duration) (*Store, error) {
	s, err := store.New(path)
	if err != nil {
		return nil, err
	}
	if _, err := s.DB().Exec(schema); err != nil {
		s.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{s: s, remindAfter: remindAfter}, nil
}

// Close closes the underlying database.
func (st *Store) Close() error {
	return st.s.Close()
}

// CheckSchema guards against an older binary opening a database
// written by a newer one.
func (st *Store) CheckSchema(ctx context.Context, currentVersion string) error {
	return st.s.CheckSchema(ctx, currentVersion)
}

type macStateRow struct {
	exists             bool
	moveCounter        int
	lastObservedSwitch sql.NullString
	lastObservedPort   sql.NullString
}

func (st *Store) getMacState(ctx context.Context, tx *sql.Tx, mac string) (macStateRow, error) {
	var row macStateRow
	err := tx.QueryRowContext(ctx,
		"SELECT move_counter, last_observed_switch, last_observed_port FROM mac_state WHERE mac_address = ?",
		mac,
	).Scan(&row.moveCounter, &row.lastObservedSwitch, &row.lastObservedPort)
	if err == sql.ErrNoRows {
		return row, nil
	}
	if err != nil {
		return row, err
	}
	row.exists = true
	return row, nil
}

// UpdateState applies the counter-transition rules for event.Status
// and returns the new move counter for this MAC.
func (st *Store) UpdateState(ctx context.Context, event models.MoveEvent) (int, error) {
	mac := event.Server.MAC()
	serverName := event.Server.ServerName()
	now := time.Now().UTC().Format(time.RFC3339)

	var newCounter int
	err := st.s.Tx(ctx, func(tx *sql.Tx) error {
		row, err := st.getMacState(ctx, tx, mac)
		if err != nil {
			return err
		}

		switch event.Status {
		case models.StatusOK, models.StatusOKMlagPeer:
			newCounter = 0
			if row.exists {
				_, err = tx.ExecContext(ctx, `
					UPDATE mac_state
					SET last_ok_seen_at = ?, move_counter = 0,
					    first_move_seen_at = NULL, last_move_seen_at = NULL,
					    updated_at = ?
					WHERE mac_address = ?`,
					now, now, mac)
			} else {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO mac_state (mac_address, server_name, last_ok_seen_at, move_counter, updated_at)
					VALUES (?, ?, ?, 0, ?)`,
					mac, serverName, now, now)
			}
			return err

		case models.StatusMoveDetected, models.StatusMoveConfirmed:
			var observedSwitch, observedPort string
			var observedVLAN int
			if event.Observed != nil {
				observedSwitch = event.Observed.SwitchName
				observedPort = event.Observed.PortName
				observedVLAN = event.Observed.VLAN
			}

			sameEndpoint := row.exists &&
				row.lastObservedSwitch.Valid && row.lastObservedSwitch.String == observedSwitch &&
				row.lastObservedPort.Valid && row.lastObservedPort.String == observedPort

			if sameEndpoint {
				newCounter = row.moveCounter + 1
				_, err = tx.ExecContext(ctx, `
					UPDATE mac_state
					SET move_counter = ?, last_move_seen_at = ?, updated_at = ?
					WHERE mac_address = ?`,
					newCounter, now, now, mac)
				return err
			}

			newCounter = 1
			if row.exists {
				_, err = tx.ExecContext(ctx, `
					UPDATE mac_state
					SET last_observed_switch = ?, last_observed_port = ?, last_observed_vlan = ?,
					    move_counter = 1, first_move_seen_at = ?, last_move_seen_at = ?, updated_at = ?
					WHERE mac_address = ?`,
					observedSwitch, observedPort, observedVLAN, now, now, now, mac)
			} else {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO mac_state
					(mac_address, server_name, last_observed_switch, last_observed_port,
					 last_observed_vlan, move_counter, first_move_seen_at, last_move_seen_at, updated_at)
					VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`,
					mac, serverName, observedSwitch, observedPort, observedVLAN, now, now, now)
			}
			return err

		case models.StatusSuspectUplink:
			newCounter = 0
			return nil

		default: // StatusNotFound
			if row.exists {
				newCounter = row.moveCounter
			} else {
				newCounter = 0
			}
			return nil
		}
	})
	return newCounter, err
}

// GetMoveCounter returns the current move counter for mac, or 0 if
// the MAC has never been recorded.
func (st *Store) GetMoveCounter(ctx context.Context, mac string) (int, error) {
	var counter int
	err := st.s.DB().QueryRowContext(ctx,
		"SELECT move_counter FROM mac_state WHERE mac_address = ?", mac,
	).Scan(&counter)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return counter, err
}

// GetFirstMoveTime returns the timestamp of the first move in the
// current streak, or nil if there is none recorded.
func (st *Store) GetFirstMoveTime(ctx context.Context, mac string) (*time.Time, error) {
	var ts sql.NullString
	err := st.s.DB().QueryRowContext(ctx,
		"SELECT first_move_seen_at FROM mac_state WHERE mac_address = ?", mac,
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !ts.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ts.String)
	if err != nil {
		return nil, fmt.Errorf("parse first_move_seen_at: %w", err)
	}
	return &t, nil
}

// alertHash computes the sha256-truncated-to-16-hex digest of
// "mac:switch:port" used to deduplicate alerts for the same endpoint.
func alertHash(mac, observedSwitch, observedPort string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", mac, observedSwitch, observedPort)))
	return hex.EncodeToString(sum[:])[:16]
}

// ShouldSendAlert reports whether an alert should be sent for mac at
// observed, and whether it would be a reminder of a prior alert for
// the same endpoint.
func (st *Store) ShouldSendAlert(ctx context.Context, mac string, observed *models.ObservedEndpoint) (send, isReminder bool, err error) {
	var observedSwitch, observedPort string
	if observed != nil {
		observedSwitch = observed.SwitchName
		observedPort = observed.PortName
	}
	hash := alertHash(mac, observedSwitch, observedPort)

	var sentAt string
	err = st.s.DB().QueryRowContext(ctx, `
		SELECT sent_at FROM alert_history
		WHERE mac_address = ? AND alert_hash = ?
		ORDER BY sent_at DESC LIMIT 1`,
		mac, hash,
	).Scan(&sentAt)
	if err == sql.ErrNoRows {
		return true, false, nil
	}
	if err != nil {
		return false, false, err
	}

	last, err := time.Parse(time.RFC3339, sentAt)
	if err != nil {
		return false, false, fmt.Errorf("parse sent_at: %w", err)
	}
	if time.Since(last) > st.remindAfter {
		return true, true, nil
	}
	return false, false, nil
}

// RecordAlert appends a row to alert_history. History is append-only;
// there is no upsert.
func (st *Store) RecordAlert(ctx context.Context, mac string, observed *models.ObservedEndpoint, isReminder bool) error {
	var observedSwitch, observedPort string
	if observed != nil {
		observedSwitch = observed.SwitchName
		observedPort = observed.PortName
	}
	hash := alertHash(mac, observedSwitch, observedPort)
	now := time.Now().UTC().Format(time.RFC3339)

	reminderFlag := 0
	if isReminder {
		reminderFlag = 1
	}

	return st.s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alert_history
			(mac_address, alert_hash, sent_at, observed_switch, observed_port, is_reminder)
			VALUES (?, ?, ?, ?, ?, ?)`,
			mac, hash, now, observedSwitch, observedPort, reminderFlag)
		return err
	})
}

// CleanupOldAlerts deletes alert_history rows older than days and
// returns the number deleted.
func (st *Store) CleanupOldAlerts(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	var deleted int
	err := st.s.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM alert_history WHERE sent_at < ?", cutoff)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	return deleted, err
}
