// CLAUDE:SUMMARY Snapshot audit log operations — append capture records, query per-session history, prune by age.
package store

import (
	"context"
	"time"

	"github.com/hazyhaar/tabkeeper/internal/idgen"
)

// Snapshot log IDs are type-scoped and time-sortable.
var newSnapshotID = idgen.Prefixed("snap_", idgen.UUIDv7())

// SnapshotEntry is one accessibility capture recorded in the audit log.
type SnapshotEntry struct {
	ID          string `json:"id"`
	SessionName string `json:"session"`
	TargetID    string `json:"target_id"`
	Generation  int64  `json:"generation"`
	NodeCount   int    `json:"node_count"`
	RefCount    int    `json:"ref_count"`
	Truncated   bool   `json:"truncated,omitempty"`
	CapturedAt  int64  `json:"captured_at"`
}

// LogSnapshot appends a capture record. Fills ID and CapturedAt when unset.
func (s *Store) LogSnapshot(ctx context.Context, e *SnapshotEntry) error {
	if e.ID == "" {
		e.ID = newSnapshotID()
	}
	if e.CapturedAt == 0 {
		e.CapturedAt = time.Now().UnixMilli()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO snapshot_log
			(id, session_name, target_id, generation, node_count, ref_count, truncated, captured_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.SessionName, e.TargetID, e.Generation, e.NodeCount, e.RefCount,
		boolInt(e.Truncated), e.CapturedAt,
	)
	return err
}

// SnapshotHistory returns the most recent captures for a session, newest
// first. A non-positive limit defaults to 20.
func (s *Store) SnapshotHistory(ctx context.Context, sessionName string, limit int) ([]*SnapshotEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, session_name, target_id, generation, node_count, ref_count, truncated, captured_at
		FROM snapshot_log
		WHERE session_name = ?
		ORDER BY captured_at DESC, generation DESC
		LIMIT ?`, sessionName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*SnapshotEntry
	for rows.Next() {
		e := &SnapshotEntry{}
		var truncated int
		if err := rows.Scan(
			&e.ID, &e.SessionName, &e.TargetID, &e.Generation, &e.NodeCount,
			&e.RefCount, &truncated, &e.CapturedAt,
		); err != nil {
			return nil, err
		}
		e.Truncated = truncated != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneSnapshotLog deletes log rows captured before the cutoff and reports
// how many were removed.
func (s *Store) PruneSnapshotLog(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM snapshot_log WHERE captured_at < ?`,
		olderThan.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
