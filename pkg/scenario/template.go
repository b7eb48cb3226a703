// Package scenario loads scenario templates (step graphs of prompt
// templates with variable declarations) and advances a session's position
// through them as the learner's turns satisfy each step's expectations.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// VariableType is the closed set of semantic types a scenario variable may
// take on.
type VariableType string

const (
	VariableText    VariableType = "text"
	VariableNumber  VariableType = "number"
	VariableBoolean VariableType = "boolean"
	VariableChoice  VariableType = "choice"
)

// Variable declares one slot a scenario collects from the learner over the
// course of the conversation.
type Variable struct {
	Name     string       `yaml:"name"`
	Type     VariableType `yaml:"type"`
	Required bool         `yaml:"required"`
	Default  interface{}  `yaml:"default,omitempty"`
	Choices  []string     `yaml:"choices,omitempty"` // only meaningful for VariableChoice
}

// Step is one node of the scenario's directed graph: a prompt template,
// the variables it expects the learner to supply, and its declared
// successors.
type Step struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	PromptTemplate    string   `yaml:"prompt_template"`
	ExpectedVariables []string `yaml:"expected_variables"`
	Successors        []string `yaml:"successors"`
	Terminal          bool     `yaml:"terminal"`
}

// Template is a static scenario graph: loaded once at session start and
// never mutated afterward.
type Template struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	FirstStep  string     `yaml:"first_step"`
	Variables  []Variable `yaml:"variables"`
	Steps      []Step     `yaml:"steps"`

	stepsByID map[string]Step
}

// Load parses a scenario template from YAML and validates its graph
// invariants (exactly one first step, every successor a real step).
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML bytes into a validated Template.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("scenario: parse: %w", err)
	}
	if err := t.build(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Template) build() error {
	if t.FirstStep == "" {
		return fmt.Errorf("scenario %q: first_step is required", t.ID)
	}
	t.stepsByID = make(map[string]Step, len(t.Steps))
	for _, s := range t.Steps {
		if s.ID == "" {
			return fmt.Errorf("scenario %q: step with empty id", t.ID)
		}
		t.stepsByID[s.ID] = s
	}
	if _, ok := t.stepsByID[t.FirstStep]; !ok {
		return fmt.Errorf("scenario %q: first_step %q is not a declared step", t.ID, t.FirstStep)
	}
	for _, s := range t.Steps {
		for _, succ := range s.Successors {
			if _, ok := t.stepsByID[succ]; !ok {
				return fmt.Errorf("scenario %q: step %q declares unknown successor %q", t.ID, s.ID, succ)
			}
		}
	}
	return nil
}

// Step returns the step with the given id, if declared.
func (t *Template) Step(id string) (Step, bool) {
	s, ok := t.stepsByID[id]
	return s, ok
}

// IsSuccessor reports whether candidate is a declared successor of from, or
// equal to from itself (remaining on the current step is always legal).
func (t *Template) IsSuccessor(from, candidate string) bool {
	if from == candidate {
		return true
	}
	s, ok := t.stepsByID[from]
	if !ok {
		return false
	}
	for _, succ := range s.Successors {
		if succ == candidate {
			return true
		}
	}
	return false
}

// VariableDecl looks up a variable's declaration by name.
func (t *Template) VariableDecl(name string) (Variable, bool) {
	for _, v := range t.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}
