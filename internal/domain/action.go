package domain

import (
	"fmt"

	"github.com/samber/lo"
)

type ActionToken string

const (
	ActionForward   ActionToken = "forward"
	ActionTurnRight ActionToken = "turnRight"
	ActionTurnLeft  ActionToken = "turnLeft"
	ActionTurnBack  ActionToken = "turnBack"
	ActionSpin      ActionToken = "spin"
	ActionWin       ActionToken = "win"
	ActionLose      ActionToken = "lose"
)

const (
	VocabularyBasic    = "basic"
	VocabularyExtended = "extended"
)

// Vocabulary is the closed set of tokens a deployment accepts.
// It is configuration, fixed at construction, never mutated.
type Vocabulary struct {
	name   string
	tokens []ActionToken
	set    map[ActionToken]struct{}
}

func NewVocabulary(name string) (*Vocabulary, error) {
	var tokens []ActionToken
	switch name {
	case VocabularyBasic:
		tokens = []ActionToken{ActionForward, ActionTurnRight, ActionTurnLeft, ActionTurnBack}
	case VocabularyExtended:
		tokens = []ActionToken{
			ActionForward, ActionTurnRight, ActionTurnLeft, ActionTurnBack,
			ActionSpin, ActionWin, ActionLose,
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVocabulary, name)
	}
	set := make(map[ActionToken]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return &Vocabulary{name: name, tokens: tokens, set: set}, nil
}

func (v *Vocabulary) Name() string { return v.name }

func (v *Vocabulary) Contains(tok ActionToken) bool {
	_, ok := v.set[tok]
	return ok
}

// Tokens returns the allowed set in its canonical order.
func (v *Vocabulary) Tokens() []ActionToken {
	out := make([]ActionToken, len(v.tokens))
	copy(out, v.tokens)
	return out
}

// Validate checks a sequence all-or-nothing and returns the offending
// tokens in submission order. An empty result means the whole sequence
// is acceptable.
func (v *Vocabulary) Validate(seq []ActionToken) []ActionToken {
	return lo.Filter(seq, func(tok ActionToken, _ int) bool {
		return !v.Contains(tok)
	})
}
