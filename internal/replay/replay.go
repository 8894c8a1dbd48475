package replay

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"companion/internal/logging"
	"companion/internal/pipeline"

	"golang.org/x/sync/errgroup"
)

// Mismatch is one checked field that did not match.
type Mismatch struct {
	ConversationID string `json:"conversationId"`
	Turn           int    `json:"turn"`
	Message        string `json:"message"`
	Field          string `json:"field"`
	Want           string `json:"want"`
	Got            string `json:"got"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s turn %d %s: want %q, got %q (%q)", m.ConversationID, m.Turn, m.Field, m.Want, m.Got, m.Message)
}

// Result is the outcome of one conversation.
type Result struct {
	ConversationID string            `json:"conversationId"`
	Outputs        []pipeline.Output `json:"outputs"`
	Mismatches     []Mismatch        `json:"mismatches,omitempty"`
}

// Report collects the results of a run in input order.
type Report struct {
	Results    []Result `json:"results"`
	Turns      int      `json:"turns"`
	Mismatches int      `json:"mismatches"`
}

// OK reports whether every checked turn matched.
func (r *Report) OK() bool { return r.Mismatches == 0 }

// Failures returns every mismatch in input order.
func (r *Report) Failures() []Mismatch {
	var out []Mismatch
	for _, res := range r.Results {
		out = append(out, res.Mismatches...)
	}
	return out
}

// Run replays conversations through p with at most workers conversations in
// flight (0 means one per CPU). Each conversation starts from an empty state
// and threads its own state from turn to turn, so the pipeline is shared.
// A cancelled context stops the run and returns its error.
func Run(ctx context.Context, p *pipeline.Pipeline, convs []Conversation, workers int) (*Report, error) {
	if p == nil {
		return nil, fmt.Errorf("replay: pipeline is nil")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	timer := logging.StartTimer(logging.CategoryReplay, "Run")
	defer timer.Stop()
	logging.Replay("Replaying %d conversations with %d workers (catalog %s)", len(convs), workers, p.Catalog().Version())

	results := make([]Result, len(convs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i := range convs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = runConversation(egCtx, p, convs[i])
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Results: results}
	for _, res := range results {
		report.Turns += len(res.Outputs)
		report.Mismatches += len(res.Mismatches)
		for _, mm := range res.Mismatches {
			logging.ReplayDebug("mismatch: %s", mm)
		}
	}
	logging.Replay("Replay complete: %d turns, %d mismatches", report.Turns, report.Mismatches)
	return report, nil
}

func runConversation(ctx context.Context, p *pipeline.Pipeline, c Conversation) Result {
	res := Result{ConversationID: c.ID, Outputs: make([]pipeline.Output, 0, len(c.Turns))}

	in := pipeline.NewState()
	if c.Region != "" {
		in.Facts.Region = strings.ToUpper(strings.TrimSpace(c.Region))
	}

	for i, turn := range c.Turns {
		if ctx.Err() != nil {
			return res
		}
		if i > 0 {
			in = res.Outputs[i-1].Next(turn.Message)
		}
		in.Message = turn.Message
		in.CrisisConfirmed = turn.CrisisConfirmed
		in.RequestedMode = turn.RequestedMode

		out := p.Process(in)
		res.Outputs = append(res.Outputs, out)
		if turn.Expect != nil {
			res.Mismatches = append(res.Mismatches, compare(c.ID, i, turn, out)...)
		}
	}
	logging.Get(logging.CategoryReplay).StructuredLog("debug", "conversation replayed", map[string]interface{}{
		"conversation": c.ID,
		"turns":        len(res.Outputs),
		"mismatches":   len(res.Mismatches),
	})
	return res
}

func compare(id string, idx int, turn Turn, out pipeline.Output) []Mismatch {
	var ms []Mismatch
	add := func(field, want, got string) {
		ms = append(ms, Mismatch{ConversationID: id, Turn: idx, Message: turn.Message, Field: field, Want: want, Got: got})
	}
	e := turn.Expect

	if e.Category != "" && e.Category != out.Analysis.Category {
		add("category", string(e.Category), string(out.Analysis.Category))
	}
	if e.Tier != "" && e.Tier != out.Tier {
		add("tier", string(e.Tier), string(out.Tier))
	}
	if e.Mode != "" && e.Mode != out.Mode {
		add("mode", string(e.Mode), string(out.Mode))
	}
	if e.SuicideRisk != "" && e.SuicideRisk != out.Analysis.SuicideRiskLevel {
		add("suicide_risk", string(e.SuicideRisk), string(out.Analysis.SuicideRiskLevel))
	}
	if e.Escalate != nil && *e.Escalate != out.RequiresEscalation {
		add("escalate", fmt.Sprint(*e.Escalate), fmt.Sprint(out.RequiresEscalation))
	}
	for _, g := range e.Guards {
		if !containsString(out.GuardsTriggered, g) {
			add("guards", g, strings.Join(out.GuardsTriggered, ","))
		}
	}
	for _, s := range e.Contains {
		if !strings.Contains(out.ResponseTemplate, s) {
			add("contains", s, out.ResponseTemplate)
		}
	}
	return ms
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
