package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrMissingRoomID     = errors.New("room id is required")
	ErrInvalidRoomID     = errors.New("invalid room id")
	ErrEmptySequence     = errors.New("actions is required and must be a non-empty array")
	ErrUnknownVocabulary = errors.New("unknown vocabulary")
)

// InvalidTokensError rejects a whole publish and tells the caller
// which tokens were wrong and what the allowed set is.
type InvalidTokensError struct {
	Invalid []ActionToken
	Allowed []ActionToken
}

func (e *InvalidTokensError) Error() string {
	return fmt.Sprintf("Invalid actions: %s. Allowed: %s",
		joinTokens(e.Invalid), joinTokens(e.Allowed))
}

func joinTokens(toks []ActionToken) string {
	return strings.Join(lo.Map(toks, func(t ActionToken, _ int) string {
		return string(t)
	}), ", ")
}
