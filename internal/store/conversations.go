package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"companion/internal/conversation"
	"companion/internal/logging"
	"companion/internal/types"
)

// =============================================================================
// CONVERSATION STATE
// =============================================================================

// State is what the pipeline threads from one turn to the next.
type State struct {
	Mode         types.Mode                     `json:"mode"`
	Facts        conversation.SimpleFacts       `json:"facts"`
	Ledger       conversation.IntentLedger      `json:"intentLedger"`
	Tracker      conversation.VolatilityTracker `json:"volatilityTracker"`
	IsPostCrisis bool                           `json:"isPostCrisis"`
}

// NewState returns the state a fresh conversation starts with.
func NewState() State {
	return State{
		Mode:    types.ModeNormal,
		Ledger:  conversation.NewIntentLedger(),
		Tracker: conversation.NewVolatilityTracker(),
	}
}

// Conversation is a stored conversation with its current state.
type Conversation struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateConversation inserts a conversation with the initial state.
func (s *Store) CreateConversation(id string) (*Conversation, error) {
	if id == "" {
		return nil, fmt.Errorf("conversation id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := NewState()
	facts, ledger, tracker, err := encodeState(state)
	if err != nil {
		return nil, err
	}
	now := s.timestamp()

	_, err = s.db.Exec(
		`INSERT INTO conversations (id, mode, facts_json, ledger_json, tracker_json, post_crisis, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, string(state.Mode), facts, ledger, tracker, now, now,
	)
	if err != nil {
		logging.StoreError("Failed to create conversation %s: %v", id, err)
		return nil, fmt.Errorf("failed to create conversation %s: %w", id, err)
	}

	logging.Store("Conversation created: %s", id)
	return &Conversation{ID: id, State: state, CreatedAt: fromMillis(now), UpdatedAt: fromMillis(now)}, nil
}

// LoadState returns a conversation and its latest state. It returns
// ErrNotFound for an unknown id.
func (s *Store) LoadState(id string) (*Conversation, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LoadState")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT c.id, c.mode, c.facts_json, c.ledger_json, c.tracker_json, c.post_crisis, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM turns t WHERE t.conversation_id = c.id)
		 FROM conversations c WHERE c.id = ?`,
		id,
	)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		logging.StoreError("Failed to load conversation %s: %v", id, err)
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	logging.StoreDebug("Loaded conversation %s: mode=%s turns=%d", id, c.State.Mode, c.Turns)
	return c, nil
}

// ListConversations returns the most recently updated conversations first.
func (s *Store) ListConversations(limit int) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT c.id, c.mode, c.facts_json, c.ledger_json, c.tracker_json, c.post_crisis, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM turns t WHERE t.conversation_id = c.id)
		 FROM conversations c
		 ORDER BY c.updated_at DESC, c.id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		logging.StoreError("Failed to list conversations: %v", err)
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			logging.StoreError("Skipping unreadable conversation row: %v", err)
			continue
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return out, nil
}

// DeleteConversation removes a conversation and its turns.
func (s *Store) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM turns WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete turns of %s: %w", id, err)
	}
	res, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}

	logging.Store("Conversation deleted: %s", id)
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanner) (*Conversation, error) {
	var (
		c                      Conversation
		mode                   string
		facts, ledger, tracker string
		postCrisis             int
		created, updated       int64
	)
	if err := row.Scan(&c.ID, &mode, &facts, &ledger, &tracker, &postCrisis, &created, &updated, &c.Turns); err != nil {
		return nil, err
	}
	state, err := decodeState(mode, facts, ledger, tracker, postCrisis != 0)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", c.ID, err)
	}
	c.State = state
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

func encodeState(st State) (facts, ledger, tracker string, err error) {
	f, err := json.Marshal(st.Facts)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode facts: %w", err)
	}
	l, err := json.Marshal(st.Ledger)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode intent ledger: %w", err)
	}
	t, err := json.Marshal(st.Tracker)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode volatility tracker: %w", err)
	}
	return string(f), string(l), string(t), nil
}

func decodeState(mode, facts, ledger, tracker string, postCrisis bool) (State, error) {
	st := NewState()
	st.Mode = types.Mode(mode)
	st.IsPostCrisis = postCrisis
	if err := json.Unmarshal([]byte(facts), &st.Facts); err != nil {
		return State{}, fmt.Errorf("failed to decode facts: %w", err)
	}
	if err := json.Unmarshal([]byte(ledger), &st.Ledger); err != nil {
		return State{}, fmt.Errorf("failed to decode intent ledger: %w", err)
	}
	if err := json.Unmarshal([]byte(tracker), &st.Tracker); err != nil {
		return State{}, fmt.Errorf("failed to decode volatility tracker: %w", err)
	}
	// Nil slices from an older row read back as empty.
	if st.Ledger.AskedQuestions == nil {
		st.Ledger.AskedQuestions = []conversation.AskedQuestion{}
	}
	if st.Ledger.KnownFactKeys == nil {
		st.Ledger.KnownFactKeys = []types.FactKey{}
	}
	if st.Tracker.History == nil {
		st.Tracker.History = []conversation.VolatilitySample{}
	}
	if st.Tracker.Trend == "" {
		st.Tracker.Trend = types.TrendStable
	}
	return st, nil
}
