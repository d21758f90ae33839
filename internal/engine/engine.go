// Package engine resolves free-form user messages against the capability
// catalog, asking clarification questions until it can emit a fully bound
// plan. All conversation state lives in the session store; the engine
// itself is stateless and safe for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"capgen/internal/capability"
	"capgen/internal/catalog"
	"capgen/internal/nlu"
	"capgen/internal/plan"
	"capgen/internal/session"
)

// Response statuses.
const (
	StatusClarify = "clarify"
	StatusPlan    = "plan"
	StatusSummary = "summary"
	StatusError   = "error"
)

// Error codes carried on StatusError responses.
const (
	CodeClassifierUnavailable = "classifier_unavailable"
	CodeAppMismatch           = "app_mismatch"
	CodeEmptyMessage          = "empty_message"
	CodeCapabilityMissing     = "capability_missing"
)

// Classifier is the language-understanding surface the engine needs.
type Classifier interface {
	Classify(ctx context.Context, appID, message string, allowed []string, history []nlu.Turn) (*nlu.ClassificationResult, error)
	IsCapabilityQuestion(ctx context.Context, message string) (bool, error)
}

// Response is the engine's answer to one user message.
type Response struct {
	Status        string     `json:"status"`
	Question      string     `json:"question,omitempty"`
	Message       string     `json:"message,omitempty"`
	Plan          *plan.Plan `json:"plan,omitempty"`
	NextSessionID string     `json:"next_session_id,omitempty"`
	Code          string     `json:"code,omitempty"`
}

// Engine wires sessions, catalog and classifier together.
type Engine struct {
	sessions   *session.Store
	catalog    *catalog.Catalog
	classifier Classifier
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an engine.
func New(sessions *session.Store, cat *catalog.Catalog, classifier Classifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		sessions:   sessions,
		catalog:    cat,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// StartSession opens a fresh session and returns its ID.
func (e *Engine) StartSession() string {
	return e.sessions.Create()
}

// HandleMessage processes one user message within a session. Session
// lookup failures surface as session.ErrNotFound / session.ErrClosed; the
// transport layer maps those to its own error shape.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, appID, message string) (*Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return &Response{Status: StatusError, Code: CodeEmptyMessage, Message: "message is empty"}, nil
	}

	var resp *Response
	err := e.sessions.With(sessionID, func(s *session.Session) error {
		var err error
		resp, err = e.handle(ctx, s, appID, message)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Delivering a plan finishes the conversation: the session closes and
	// the response carries a fresh session ID for the next exchange.
	if resp.Status == StatusPlan {
		if cerr := e.sessions.Close(sessionID); cerr != nil && !errors.Is(cerr, session.ErrNotFound) {
			e.logger.Warn("closing delivered session", zap.String("session_id", sessionID), zap.Error(cerr))
		}
	}
	return resp, nil
}

func (e *Engine) handle(ctx context.Context, s *session.Session, appID, message string) (*Response, error) {
	if s.AppID == "" {
		s.AppID = appID
	} else if appID != "" && appID != s.AppID {
		return &Response{
			Status:  StatusError,
			Code:    CodeAppMismatch,
			Message: fmt.Sprintf("session is bound to app %s", s.AppID),
		}, nil
	}
	snap := e.catalog.Load()

	if s.State == session.StateAwaitingSlotValue {
		return e.fillSlot(s, snap, message)
	}
	if len(s.Pending.Candidates) > 0 {
		if resp, handled := e.resolveCandidate(s, snap, message); handled {
			return resp, nil
		}
		// The reply did not pick a candidate; treat it as a new request.
		s.ClearPending()
	}
	return e.resolveMessage(ctx, s, snap, message)
}

// resolveMessage runs the meta-question check and intent classification.
// Both model calls happen before any session mutation, so a classifier
// outage leaves the conversation exactly as it was.
func (e *Engine) resolveMessage(ctx context.Context, s *session.Session, snap *catalog.Snapshot, message string) (*Response, error) {
	if summary, ok := snap.SummaryFor(s.AppID); ok {
		isQuestion, err := e.classifier.IsCapabilityQuestion(ctx, message)
		if err != nil {
			e.logger.Warn("capability question check failed",
				zap.String("session_id", s.ID), zap.Error(err))
		} else if isQuestion {
			e.appendExchange(s, message, summary, "intent_summary")
			return &Response{Status: StatusSummary, Message: summary}, nil
		}
	}

	allowed := snap.IntentsFor(s.AppID)
	result, err := e.classifier.Classify(ctx, s.AppID, message, allowed, e.recentTurns(s))
	if err != nil {
		var unavailable *nlu.ClassifierUnavailableError
		if errors.As(err, &unavailable) {
			e.logger.Error("classifier unavailable",
				zap.String("session_id", s.ID), zap.Error(err))
			return &Response{
				Status:  StatusError,
				Code:    CodeClassifierUnavailable,
				Message: "could not understand the request right now, please try again",
			}, nil
		}
		return nil, err
	}

	if len(result.Candidates) > 1 {
		s.AddTurn("user", message, "", e.now())
		s.Pending = session.Pending{Candidates: result.Candidates}
		s.State = session.StateAwaitingMessage
		question := candidateQuestion(result.Candidates)
		s.AddTurn("agent", question, "clarify", e.now())
		return &Response{Status: StatusClarify, Question: question}, nil
	}

	if !result.Supported || result.MatchedIntent == "" {
		s.AddTurn("user", message, "", e.now())
		s.ClearPending()
		question := "I couldn't match that to anything this app can do. Could you rephrase?"
		s.AddTurn("agent", question, "clarify", e.now())
		return &Response{Status: StatusClarify, Question: question}, nil
	}

	target, ok := snap.CapabilityForIntent(s.AppID, result.MatchedIntent)
	if !ok {
		e.logger.Error("matched intent has no capability",
			zap.String("app_id", s.AppID), zap.String("intent", result.MatchedIntent))
		return &Response{
			Status:  StatusError,
			Code:    CodeCapabilityMissing,
			Message: "the matched action is not available right now",
		}, nil
	}

	s.AddTurn("user", message, "", e.now())
	return e.advance(s, target, seedValues(target, message))
}

// fillSlot consumes the user's reply to a slot question.
func (e *Engine) fillSlot(s *session.Session, snap *catalog.Snapshot, message string) (*Response, error) {
	target, ok := snap.Capability(s.AppID, s.Pending.Capability)
	if !ok {
		s.ClearPending()
		return &Response{
			Status:  StatusError,
			Code:    CodeCapabilityMissing,
			Message: "the pending action is no longer available",
		}, nil
	}

	s.AddTurn("user", message, "", e.now())
	values := s.Pending.Values
	if values == nil {
		values = map[string]string{}
	}
	values[s.Pending.MissingSlot] = slotValue(message)
	return e.advance(s, target, values)
}

// resolveCandidate tries to interpret the reply as a pick from the pending
// candidate list, by number or by (case-insensitive) phrase.
func (e *Engine) resolveCandidate(s *session.Session, snap *catalog.Snapshot, message string) (*Response, bool) {
	candidates := s.Pending.Candidates
	pick := ""
	if n, err := strconv.Atoi(strings.TrimSpace(message)); err == nil && n >= 1 && n <= len(candidates) {
		pick = candidates[n-1]
	} else {
		lower := strings.ToLower(message)
		for _, cand := range candidates {
			if strings.Contains(lower, strings.ToLower(cand)) {
				pick = cand
				break
			}
		}
	}
	if pick == "" {
		return nil, false
	}

	target, ok := snap.CapabilityForIntent(s.AppID, pick)
	if !ok {
		s.ClearPending()
		return &Response{
			Status:  StatusError,
			Code:    CodeCapabilityMissing,
			Message: "the chosen action is not available right now",
		}, true
	}
	s.AddTurn("user", message, "", e.now())
	resp, err := e.advance(s, target, seedValues(target, message))
	if err != nil {
		return &Response{Status: StatusError, Message: err.Error()}, true
	}
	return resp, true
}

// advance builds a plan with the values collected so far. An incomplete
// plan turns into the next slot question; a complete one is delivered with
// a fresh session ID.
func (e *Engine) advance(s *session.Session, target *capability.Capability, values map[string]string) (*Response, error) {
	p, err := plan.Build(target, values)
	if err != nil {
		return nil, err
	}

	if !p.Complete() {
		missing := p.Unbound[0]
		s.State = session.StateAwaitingSlotValue
		s.Pending = session.Pending{
			Capability:  target.Name,
			Values:      values,
			MissingSlot: missing,
		}
		question := slotQuestion(target, missing)
		s.AddTurn("agent", question, "clarify", e.now())
		return &Response{Status: StatusClarify, Question: question}, nil
	}

	s.ClearPending()
	s.State = session.StateClosed
	s.AddTurn("agent", "plan delivered: "+target.Name, "plan", e.now())

	next := e.sessions.Create()
	e.logger.Info("plan delivered",
		zap.String("session_id", s.ID),
		zap.String("app_id", target.AppID),
		zap.String("capability", target.Name),
		zap.String("next_session_id", next))
	return &Response{Status: StatusPlan, Plan: p, NextSessionID: next}, nil
}

func (e *Engine) appendExchange(s *session.Session, userMsg, agentMsg, turnType string) {
	s.AddTurn("user", userMsg, "", e.now())
	s.AddTurn("agent", agentMsg, turnType, e.now())
	s.ClearPending()
}

func (e *Engine) recentTurns(s *session.Session) []nlu.Turn {
	turns := make([]nlu.Turn, 0, len(s.History))
	for _, t := range s.History {
		turns = append(turns, nlu.Turn{Role: t.Role, Message: t.Message})
	}
	return turns
}

func candidateQuestion(candidates []string) string {
	var b strings.Builder
	b.WriteString("That could mean a few different things. Which one did you want?\n")
	for i, cand := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, cand)
	}
	b.WriteString("Reply with a number or rephrase your request.")
	return b.String()
}

func slotQuestion(target *capability.Capability, slotName string) string {
	for _, slot := range target.Slots {
		if slot.Name == slotName {
			return fmt.Sprintf("What value should I use for that? For example: %q.", slot.Example)
		}
	}
	return "What value should I use for that?"
}
