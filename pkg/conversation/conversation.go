// Package conversation runs chat turns. A turn moves through routing,
// tool invocation, and normalization; failures surface as an apology
// answer rather than an error page, and the failed turn still lands in
// session history.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratushealth/concierge/pkg/config"
	"github.com/stratushealth/concierge/pkg/normalizer"
	"github.com/stratushealth/concierge/pkg/observability"
	"github.com/stratushealth/concierge/pkg/protocol"
	"github.com/stratushealth/concierge/pkg/router"
	"github.com/stratushealth/concierge/pkg/session"
)

// Phase is where a turn ended up.
type Phase string

const (
	PhaseDone   Phase = "done"
	PhaseFailed Phase = "failed"
)

// Turn is the outcome of one question.
type Turn struct {
	SessionID    string
	Question     string
	Answer       string
	Result       *normalizer.Result
	ToolsInvoked []string
	Iterations   int
	Truncated    bool
	Phase        Phase
	Duration     time.Duration
}

// Manager orchestrates turns over a shared session store.
type Manager struct {
	strategy   router.Strategy
	sessions   session.Service
	scrubStore *config.ScrubRuleStore
	windowSize int
}

func NewManager(strategy router.Strategy, sessions session.Service, scrubStore *config.ScrubRuleStore, windowSize int) *Manager {
	if windowSize <= 0 {
		windowSize = 15
	}
	return &Manager{
		strategy:   strategy,
		sessions:   sessions,
		scrubStore: scrubStore,
		windowSize: windowSize,
	}
}

// Ask answers one question in a session. The returned turn always carries an
// answer; routing failures become an apology answer with PhaseFailed.
func (m *Manager) Ask(ctx context.Context, sessionID, question string) (*Turn, error) {
	if sessionID == "" {
		sessionID = session.NewID()
	}
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	start := time.Now()
	ctx = context.WithValue(ctx, protocol.SessionIDKey, sessionID)

	tracer := observability.GetTracer("concierge.conversation")
	ctx, span := tracer.Start(ctx, observability.SpanTurn,
		trace.WithAttributes(attribute.String(observability.AttrSessionID, sessionID)))
	defer span.End()

	// The window is counted in turn pairs; each pair is two messages.
	history, err := m.sessions.GetMessages(sessionID, m.windowSize*2)
	if err != nil {
		return nil, err
	}

	turn := &Turn{SessionID: sessionID, Question: question}

	outcome, routeErr := m.strategy.Route(ctx, history, question)
	if routeErr != nil {
		turn.Answer = apology()
		turn.Result = &normalizer.Result{ToolUsed: normalizer.ToolError, Text: turn.Answer, Error: routeErr.Error()}
		turn.Phase = PhaseFailed
		slog.Error("Turn failed", "session_id", sessionID, "error", routeErr)
	} else {
		turn.ToolsInvoked = outcome.ToolsInvoked
		turn.Iterations = outcome.Iterations
		turn.Truncated = outcome.Truncated
		turn.Result = normalizer.Normalize(outcome.Text, outcome.ToolsInvoked, m.scrubRules())
		turn.Answer = turn.Result.Text
		turn.Phase = PhaseDone
	}

	// Question and answer land together so a crash between them cannot
	// leave a dangling user message.
	appendErr := m.sessions.AppendMessages(sessionID, []*protocol.Message{
		protocol.UserMessage(question),
		protocol.AssistantMessage(turn.Answer),
	})
	if appendErr != nil {
		slog.Warn("Failed to record turn in session history", "session_id", sessionID, "error", appendErr)
	}

	turn.Duration = time.Since(start)
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordTurn(ctx, turn.Duration, turn.Iterations, routeErr)
	}

	return turn, nil
}

// History returns the windowed message history for a session.
func (m *Manager) History(sessionID string) ([]*protocol.Message, error) {
	return m.sessions.GetMessages(sessionID, m.windowSize*2)
}

// Reset drops a session's history.
func (m *Manager) Reset(sessionID string) error {
	return m.sessions.DeleteSession(sessionID)
}

func (m *Manager) scrubRules() *config.ScrubRules {
	if m.scrubStore == nil {
		return nil
	}
	return m.scrubStore.Current()
}

// apology is the uniform user-visible failure answer. The underlying error
// stays in the logs and the turn's Result.Error, never in the chat text.
func apology() string {
	return "I apologize, but I encountered an error while processing your question. Please try rephrasing your question."
}
