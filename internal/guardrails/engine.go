package guardrails

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netwarden/internal/models"
)

// Executor runs a confirmed or auto-approved action against the device
// layer. The engine never talks to devices directly; injecting the
// executor keeps it testable with a fake.
type Executor interface {
	Execute(tool string, params map[string]string) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(tool string, params map[string]string) (string, error)

func (f ExecutorFunc) Execute(tool string, params map[string]string) (string, error) {
	return f(tool, params)
}

// Outcome of a submitted action.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomePending  Outcome = "pending_confirmation"
	OutcomeBlocked  Outcome = "blocked"
)

// Action is a submitted action descriptor. Command is the text the
// classifier inspects; Params are opaque to the engine and interpreted
// only by the executor.
type Action struct {
	Tool        string            `json:"tool"`
	Command     string            `json:"command"`
	Params      map[string]string `json:"params"`
	Description string            `json:"description"`
}

// Decision is the engine's answer to a submission.
type Decision struct {
	Outcome  Outcome          `json:"outcome"`
	Risk     models.RiskLevel `json:"risk"`
	Reason   string           `json:"reason,omitempty"`
	ActionID string           `json:"actionId,omitempty"`
	Result   string           `json:"result,omitempty"`
}

// Engine composes the classifier and pending store to gate actions.
type Engine struct {
	classifier *Classifier
	store      *PendingStore
	executor   Executor
	threshold  models.RiskLevel
	logger     zerolog.Logger
}

// NewEngine creates a guardrails engine. Risk at or above threshold
// requires confirmation; below it, actions execute immediately.
func NewEngine(classifier *Classifier, store *PendingStore, executor Executor, threshold models.RiskLevel) *Engine {
	return &Engine{
		classifier: classifier,
		store:      store,
		executor:   executor,
		threshold:  threshold,
		logger:     log.With().Str("component", "guardrails").Logger(),
	}
}

// Submit classifies the action and either blocks it, executes it, or
// parks it as a pending action awaiting confirmation. A blocked command
// never creates a pending action.
func (e *Engine) Submit(a Action) Decision {
	if blocked, reason := e.classifier.IsBlocked(a.Command); blocked {
		e.logger.Warn().Str("tool", a.Tool).Str("command", a.Command).Msg("Action blocked by denylist")
		return Decision{
			Outcome: OutcomeBlocked,
			Risk:    models.RiskCritical,
			Reason:  reason,
		}
	}

	risk := e.classifier.Classify(a.Command)

	if risk < e.threshold {
		result, err := e.executor.Execute(a.Tool, a.Params)
		if err != nil {
			e.logger.Error().Err(err).Str("tool", a.Tool).Msg("Auto-approved action failed")
			return Decision{
				Outcome: OutcomeExecuted,
				Risk:    risk,
				Reason:  fmt.Sprintf("execution failed: %v", err),
			}
		}
		return Decision{
			Outcome: OutcomeExecuted,
			Risk:    risk,
			Result:  result,
		}
	}

	reason := fmt.Sprintf("risk level %s requires confirmation", risk)
	pending := e.store.Add(a.Tool, a.Params, a.Description, reason)

	e.logger.Info().
		Str("actionId", pending.ID).
		Str("tool", a.Tool).
		Str("risk", risk.String()).
		Msg("Action parked pending confirmation")

	return Decision{
		Outcome:  OutcomePending,
		Risk:     risk,
		Reason:   reason,
		ActionID: pending.ID,
	}
}

// Confirm resolves the pending action and invokes the executor exactly
// once. If execution fails the action's terminal state remains
// confirmed; the failure is surfaced to the caller, not retried.
func (e *Engine) Confirm(id string) (string, error) {
	a, err := e.store.Confirm(id)
	if err != nil {
		return "", err
	}

	e.logger.Info().Str("actionId", id).Str("tool", a.ToolName).Msg("Action confirmed, executing")

	result, err := e.executor.Execute(a.ToolName, a.Params)
	if err != nil {
		e.logger.Error().Err(err).Str("actionId", id).Msg("Confirmed action failed to execute")
		return "", fmt.Errorf("action %s confirmed but execution failed: %w", id, err)
	}

	return result, nil
}

// Cancel resolves the pending action without ever invoking the
// executor.
func (e *Engine) Cancel(id string) error {
	if _, err := e.store.Cancel(id); err != nil {
		return err
	}

	e.logger.Info().Str("actionId", id).Msg("Action cancelled")
	return nil
}

// ListPending exposes the still-confirmable actions.
func (e *Engine) ListPending() []*models.PendingAction {
	return e.store.ListPending()
}

// Threshold returns the configured confirmation threshold.
func (e *Engine) Threshold() models.RiskLevel {
	return e.threshold
}
