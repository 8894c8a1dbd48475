// Package replay runs scripted conversations through the pipeline and
// compares each turn with its expected outcome. It is the regression harness
// for catalog edits: a catalog change that moves a scripted message to a
// different category or mode shows up as a mismatch.
package replay

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"companion/internal/types"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios/*.yaml
var builtinFS embed.FS

// Expect lists the checked fields of one turn. Empty fields are not checked.
type Expect struct {
	Category    types.Category    `yaml:"category,omitempty" json:"category,omitempty"`
	Tier        types.Tier        `yaml:"tier,omitempty" json:"tier,omitempty"`
	Mode        types.Mode        `yaml:"mode,omitempty" json:"mode,omitempty"`
	SuicideRisk types.SuicideRisk `yaml:"suicide_risk,omitempty" json:"suicideRisk,omitempty"`
	Escalate    *bool             `yaml:"escalate,omitempty" json:"escalate,omitempty"`
	// Guards must all appear in the turn's triggered guards.
	Guards []string `yaml:"guards,omitempty" json:"guards,omitempty"`
	// Contains must all appear in the rendered response.
	Contains []string `yaml:"contains,omitempty" json:"contains,omitempty"`
}

// Turn is one scripted user message.
type Turn struct {
	Message         string     `yaml:"message"`
	CrisisConfirmed bool       `yaml:"crisis_confirmed,omitempty"`
	RequestedMode   types.Mode `yaml:"requested_mode,omitempty"`
	Expect          *Expect    `yaml:"expect,omitempty"`
}

// Conversation is a scripted conversation. Region, if set, is treated as
// already known when the conversation starts.
type Conversation struct {
	ID     string `yaml:"id"`
	Region string `yaml:"region,omitempty"`
	Turns  []Turn `yaml:"turns"`
}

// Transcript is the file format.
type Transcript struct {
	Conversations []Conversation `yaml:"conversations"`
}

// Parse decodes a transcript and checks that every conversation has an id
// and at least one turn.
func Parse(data []byte) (*Transcript, error) {
	var t Transcript
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	seen := make(map[string]bool, len(t.Conversations))
	for i, c := range t.Conversations {
		if c.ID == "" {
			return nil, fmt.Errorf("conversation %d has no id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate conversation id %q", c.ID)
		}
		seen[c.ID] = true
		if len(c.Turns) == 0 {
			return nil, fmt.Errorf("conversation %q has no turns", c.ID)
		}
	}
	return &t, nil
}

// LoadFile reads and parses a transcript file.
func LoadFile(p string) (*Transcript, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript %s: %w", p, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return t, nil
}

// LoadFiles loads several transcripts into one conversation list.
func LoadFiles(paths ...string) ([]Conversation, error) {
	var out []Conversation
	for _, p := range paths {
		t, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, t.Conversations...)
	}
	return out, nil
}

// Builtin returns the embedded scenario corpus in file name order.
func Builtin() ([]Conversation, error) {
	names, err := fs.Glob(builtinFS, "scenarios/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var out []Conversation
	for _, name := range names {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		t, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		out = append(out, t.Conversations...)
	}
	return out, nil
}
