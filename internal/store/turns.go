package store

import (
	"fmt"
	"time"

	"companion/internal/logging"
	"companion/internal/types"
)

// =============================================================================
// TURN LOG (append-only, idempotent on turn index)
// =============================================================================

// TurnRecord is one processed turn. Output holds the full pipeline output as
// JSON so a case reviewer sees exactly what the user was shown.
type TurnRecord struct {
	ConversationID string         `json:"conversationId"`
	TurnIndex      int            `json:"turnIndex"`
	Message        string         `json:"message"`
	Category       types.Category `json:"category"`
	Tier           types.Tier     `json:"tier"`
	Mode           types.Mode     `json:"mode"`
	Escalated      bool           `json:"escalated"`
	Output         string         `json:"output"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// SaveTurn stores the new state of conversation id together with the turn
// that produced it, in one transaction. A turn index that is already stored
// is skipped and leaves the state untouched, so retries are harmless.
// It reports whether the turn was newly written.
func (s *Store) SaveTurn(id string, state State, rec TurnRecord) (bool, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SaveTurn")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	facts, ledger, tracker, err := encodeState(state)
	if err != nil {
		return false, err
	}
	now := s.timestamp()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM conversations WHERE id = ?", id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up conversation %s: %w", id, err)
	}
	if exists == 0 {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	logging.StoreDebug("Storing turn: conversation=%s turn=%d category=%s tier=%s escalated=%v",
		id, rec.TurnIndex, rec.Category, rec.Tier, rec.Escalated)

	res, err := tx.Exec(
		`INSERT OR IGNORE INTO turns (conversation_id, turn_index, message, category, tier, mode, escalated, output_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.TurnIndex, rec.Message, string(rec.Category), string(rec.Tier), string(rec.Mode),
		boolInt(rec.Escalated), rec.Output, now,
	)
	if err != nil {
		logging.StoreError("Failed to store turn: conversation=%s turn=%d: %v", id, rec.TurnIndex, err)
		return false, fmt.Errorf("failed to store turn %d of %s: %w", rec.TurnIndex, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logging.StoreDebug("Turn already stored, skipping: conversation=%s turn=%d", id, rec.TurnIndex)
		return false, nil
	}

	_, err = tx.Exec(
		`UPDATE conversations
		 SET mode = ?, facts_json = ?, ledger_json = ?, tracker_json = ?, post_crisis = ?, updated_at = ?
		 WHERE id = ?`,
		string(state.Mode), facts, ledger, tracker, boolInt(state.IsPostCrisis), now, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update conversation %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit turn %d of %s: %w", rec.TurnIndex, id, err)
	}
	return true, nil
}

// History returns the turns of a conversation in turn order, limited to the
// most recent limit turns.
func (s *Store) History(id string, limit int) ([]TurnRecord, error) {
	timer := logging.StartTimer(logging.CategoryStore, "History")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT conversation_id, turn_index, message, category, tier, mode, escalated, output_json, created_at
		 FROM (
		   SELECT * FROM turns WHERE conversation_id = ? ORDER BY turn_index DESC LIMIT ?
		 )
		 ORDER BY turn_index ASC`,
		id, limit,
	)
	if err != nil {
		logging.StoreError("Failed to query history for %s: %v", id, err)
		return nil, fmt.Errorf("failed to query history for %s: %w", id, err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// Escalations returns escalated turns across all conversations, newest
// first. It is the case-intake view for human follow-up.
func (s *Store) Escalations(limit int) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT conversation_id, turn_index, message, category, tier, mode, escalated, output_json, created_at
		 FROM turns
		 WHERE escalated = 1
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		logging.StoreError("Failed to query escalations: %v", err)
		return nil, fmt.Errorf("failed to query escalations: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

type rowsScanner interface {
	scanner
	Next() bool
	Err() error
}

func scanTurns(rows rowsScanner) ([]TurnRecord, error) {
	out := []TurnRecord{}
	for rows.Next() {
		var (
			rec                  TurnRecord
			category, tier, mode string
			escalated            int
			created              int64
		)
		if err := rows.Scan(&rec.ConversationID, &rec.TurnIndex, &rec.Message, &category, &tier, &mode,
			&escalated, &rec.Output, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		rec.Category = types.Category(category)
		rec.Tier = types.Tier(tier)
		rec.Mode = types.Mode(mode)
		rec.Escalated = escalated != 0
		rec.CreatedAt = fromMillis(created)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	return out, nil
}
