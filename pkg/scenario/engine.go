package scenario

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

var ErrInvalidStepAdvance = orchestrator.ErrInvalidStepAdvance

// Engine advances a Session's ScenarioState against a loaded Template: it
// classifies each learner transcript against the current step's expected
// variables, extracts matched values, and decides whether to advance to a
// successor step.
type Engine struct {
	template *Template
}

func NewEngine(t *Template) *Engine {
	return &Engine{template: t}
}

// Advance classifies transcript against the current step's expected
// variables and returns the updated state. If every expected variable is
// now bound, it advances to the step's first successor (declared order);
// otherwise it remains on the current step. The returned state is always
// reachable via IsSuccessor from the input state — advancing off-graph is
// a programming error, never a possible outcome of this function.
func (e *Engine) Advance(state orchestrator.ScenarioState, transcript string) orchestrator.ScenarioState {
	step, ok := e.template.Step(state.StepID)
	if !ok {
		return state
	}

	next := orchestrator.ScenarioState{
		StepID:    state.StepID,
		Variables: copyVars(state.Variables),
	}

	for _, varName := range step.ExpectedVariables {
		if _, bound := next.Variables[varName]; bound {
			continue
		}
		decl, declared := e.template.VariableDecl(varName)
		if !declared {
			continue
		}
		if val, found := extract(decl, transcript); found {
			next.Variables[varName] = val
		}
	}

	if step.Terminal || !stepSatisfied(step, next.Variables) {
		return next
	}

	for _, succ := range step.Successors {
		next.StepID = succ
		return next
	}
	return next
}

func stepSatisfied(step Step, vars map[string]interface{}) bool {
	for _, name := range step.ExpectedVariables {
		if _, ok := vars[name]; !ok {
			return false
		}
	}
	return true
}

func copyVars(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var numberPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// extract applies a lightweight, type-directed lexical heuristic to pull a
// variable's value out of a raw transcript. It is deliberately conservative:
// a miss just means the step stays open for another turn, which is the safe
// direction to fail in.
func extract(decl Variable, transcript string) (interface{}, bool) {
	lower := strings.ToLower(strings.TrimSpace(transcript))
	if lower == "" {
		return nil, false
	}

	switch decl.Type {
	case VariableNumber:
		if m := numberPattern.FindString(transcript); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				return f, true
			}
		}
		return nil, false

	case VariableBoolean:
		for _, yes := range []string{"oui", "yes", "ouais", "d'accord", "bien sûr"} {
			if strings.Contains(lower, yes) {
				return true, true
			}
		}
		for _, no := range []string{"non", "no", "pas vraiment", "jamais"} {
			if strings.Contains(lower, no) {
				return false, true
			}
		}
		return nil, false

	case VariableChoice:
		for _, choice := range decl.Choices {
			if strings.Contains(lower, strings.ToLower(choice)) {
				return choice, true
			}
		}
		return nil, false

	default: // VariableText
		return strings.TrimSpace(transcript), true
	}
}
