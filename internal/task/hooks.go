package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentboard/agentboard/internal/board"
)

// HookMetadata describes an external automation step the caller is
// responsible for running. The engine only supplies the description; it
// never executes hooks itself.
type HookMetadata struct {
	Transition string
	Env        map[string]string
	Blocking   bool
	Timeout    time.Duration
}

// HookProvider builds hook metadata for a task transition.
type HookProvider interface {
	Metadata(transition string, t Task, b board.Board, agent string) HookMetadata
}

// Hook transitions supplied to callers.
const (
	TransitionClaim    = "claim"
	TransitionComplete = "complete"
	TransitionReview   = "review"
)

// EnvHookProvider is the default provider: a flat environment map of task,
// board, and agent context. Claim hooks block the caller briefly so setup
// steps finish before work starts; the rest run detached.
type EnvHookProvider struct{}

// Metadata implements HookProvider.
func (EnvHookProvider) Metadata(transition string, t Task, b board.Board, agent string) HookMetadata {
	env := map[string]string{
		"AGENTBOARD_TRANSITION":      transition,
		"AGENTBOARD_TASK":            t.Identifier,
		"AGENTBOARD_TASK_TITLE":      t.Title,
		"AGENTBOARD_TASK_TYPE":       string(t.Type),
		"AGENTBOARD_TASK_STATUS":     string(t.Status),
		"AGENTBOARD_TASK_PRIORITY":   fmt.Sprintf("%d", t.Priority),
		"AGENTBOARD_TASK_KEY_FILES":  strings.Join(t.KeyFiles, ","),
		"AGENTBOARD_TASK_DEPENDS_ON": strings.Join(t.Dependencies, ","),
		"AGENTBOARD_BOARD":           b.Name,
		"AGENTBOARD_AGENT":           agent,
	}
	return HookMetadata{
		Transition: transition,
		Env:        env,
		Blocking:   transition == TransitionClaim,
		Timeout:    2 * time.Minute,
	}
}
