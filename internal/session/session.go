// Package session runs conversation turns against the store.
//
// A Manager loads a conversation's state, runs the pipeline, asks the
// generator for a reply when the turn allows one, and persists the new state
// together with the turn. Turns of one conversation run one at a time in
// arrival order; different conversations run concurrently.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"companion/internal/generator"
	"companion/internal/logging"
	"companion/internal/pipeline"
	"companion/internal/store"
	"companion/internal/types"

	"github.com/google/uuid"
)

// TurnOptions carries the per-turn inputs that do not come from the user's
// message.
type TurnOptions struct {
	// CrisisConfirmed is set once a human or the user has confirmed safety.
	CrisisConfirmed bool
	// RequestedMode is a host-initiated mode change, such as a counselor
	// queue placing the user in the waiting room.
	RequestedMode types.Mode
}

// Reply is what the chat surface shows for one turn.
type Reply struct {
	ConversationID string          `json:"conversationId"`
	Text           string          `json:"text"`
	Question       string          `json:"question,omitempty"`
	Generated      bool            `json:"generated"`
	Stored         bool            `json:"stored"`
	Output         pipeline.Output `json:"output"`
}

// Manager runs turns for many conversations.
type Manager struct {
	store     *store.Store
	pipelines PipelineSource
	gen       generator.Generator

	mu     sync.Mutex
	queues map[string]*turnQueue

	newID func() string
}

// NewManager creates a manager. A nil generator sends template text as is.
func NewManager(st *store.Store, pipelines PipelineSource, gen generator.Generator) *Manager {
	if gen == nil {
		gen = generator.Static{}
	}
	logging.Session("Creating session manager (generator=%s)", gen.Name())
	return &Manager{
		store:     st,
		pipelines: pipelines,
		gen:       gen,
		queues:    make(map[string]*turnQueue),
		newID:     uuid.NewString,
	}
}

// Store returns the underlying store.
func (m *Manager) Store() *store.Store { return m.store }

// Start creates a new conversation and returns its id.
func (m *Manager) Start() (string, error) {
	id := m.newID()
	if _, err := m.store.CreateConversation(id); err != nil {
		return "", fmt.Errorf("failed to start conversation: %w", err)
	}
	logging.Session("Conversation started: %s", id)
	return id, nil
}

// Delete removes a conversation and everything stored for it.
func (m *Manager) Delete(id string) error {
	q := m.join(id)
	if err := q.acquire(context.Background()); err != nil {
		m.leave(id, q, false)
		return err
	}
	defer m.leave(id, q, true)

	return m.store.DeleteConversation(id)
}

// join returns the turn queue of id, counting the caller as a user until the
// matching leave.
func (m *Manager) join(id string) *turnQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[id]
	if !ok {
		q = &turnQueue{}
		m.queues[id] = q
		logging.SessionDebug("Turn queue created for %s", id)
	}
	q.users++
	return q
}

// leave releases q if the caller acquired it and drops the queue once it has
// no users left.
func (m *Manager) leave(id string, q *turnQueue, acquired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acquired {
		q.release()
	}
	q.users--
	if q.users == 0 && m.queues[id] == q {
		delete(m.queues, id)
		logging.SessionDebug("Turn queue for %s idle, pruned", id)
	}
}

// activeQueues returns how many conversations currently have a turn queue.
func (m *Manager) activeQueues() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// Handle processes one message of conversation id.
func (m *Manager) Handle(ctx context.Context, id, message string, opts TurnOptions) (*Reply, error) {
	q := m.join(id)
	if err := q.acquire(ctx); err != nil {
		m.leave(id, q, false)
		return nil, fmt.Errorf("turn for %s not started: %w", id, err)
	}
	defer m.leave(id, q, true)

	timer := logging.StartTimer(logging.CategorySession, "Handle")
	defer timer.Stop()

	conv, err := m.store.LoadState(id)
	if err != nil {
		return nil, err
	}
	log := logging.WithConversation(logging.CategorySession, id)

	p := m.pipelines.Pipeline()
	out := p.Process(pipeline.Input{
		Message:         message,
		Facts:           conv.State.Facts,
		Ledger:          conv.State.Ledger,
		Tracker:         conv.State.Tracker,
		CurrentMode:     conv.State.Mode,
		CrisisConfirmed: opts.CrisisConfirmed,
		IsPostCrisis:    conv.State.IsPostCrisis,
		RequestedMode:   opts.RequestedMode,
	})
	m.audit(id, out)
	logging.Triage("turn=%d category=%s tier=%s rule=%s",
		out.TurnIndex, out.Analysis.Category, out.Tier, out.Analysis.Rule)
	if len(out.GuardsTriggered) > 0 {
		logging.TriageDebug("turn=%d guards=%v", out.TurnIndex, out.GuardsTriggered)
	}

	reply := &Reply{
		ConversationID: id,
		Text:           out.ResponseTemplate,
		Question:       out.NextQuestionText,
		Output:         out,
	}

	if out.RequiresModelCall {
		text, err := m.gen.Generate(ctx, generator.Brief{
			ConversationID: id,
			TurnIndex:      out.TurnIndex,
			Message:        message,
			Category:       out.Analysis.Category,
			Tier:           out.Tier,
			Mode:           out.Mode,
			Facts:          out.Facts,
			Region:         out.Region,
			Template:       out.ResponseTemplate,
			Forbidden:      p.Catalog().ForbiddenPhrases(),
		})
		if err != nil {
			log.Warn("Generator failed, sending template: %v", err)
		} else {
			reply.Text = text
			reply.Generated = text != out.ResponseTemplate
		}
	}

	if recoveredTurn(out) {
		// State did not advance; storing the turn would claim its index.
		log.Error("Turn %d recovered from an internal failure; not stored", out.TurnIndex)
		return reply, nil
	}

	state := store.State{
		Mode:         out.Mode,
		Facts:        out.Facts,
		Ledger:       out.IntentLedger,
		Tracker:      out.VolatilityTracker,
		IsPostCrisis: out.IsPostCrisis || conv.State.IsPostCrisis,
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode turn output: %w", err)
	}
	stored, err := m.store.SaveTurn(id, state, store.TurnRecord{
		ConversationID: id,
		TurnIndex:      out.TurnIndex,
		Message:        message,
		Category:       out.Analysis.Category,
		Tier:           out.Tier,
		Mode:           out.Mode,
		Escalated:      out.RequiresEscalation,
		Output:         string(encoded),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save turn %d of %s: %w", out.TurnIndex, id, err)
	}
	reply.Stored = stored

	log.Debug("Turn %d stored=%v mode=%s escalated=%v", out.TurnIndex, stored, out.Mode, out.RequiresEscalation)
	return reply, nil
}

func (m *Manager) audit(id string, out pipeline.Output) {
	a := logging.AuditWithConversation(id)
	a.TurnProcessed(out.TurnIndex, string(out.Analysis.Category), string(out.Tier), string(out.Mode))
	if out.RequiresEscalation {
		a.Escalation(out.TurnIndex, string(out.Analysis.Category), string(out.Tier), out.GuardsTriggered)
	}
	if out.ProposedMode != out.PreviousMode {
		a.ModeChange(out.TurnIndex, string(out.PreviousMode), string(out.ProposedMode), out.ModeTransitionLegal)
	}
	if out.UsedFallback {
		a.TemplateFallback(out.TurnIndex, string(out.Analysis.Category), out.GuardsTriggered)
	}
}

func recoveredTurn(out pipeline.Output) bool {
	for _, g := range out.GuardsTriggered {
		if g == pipeline.GuardRecovered {
			return true
		}
	}
	return false
}
