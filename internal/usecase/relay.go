package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chat-relay/internal/domain"
	"chat-relay/internal/sanitize"
)

// FallbackReply replaces a reply that is missing or sanitized to nothing.
const FallbackReply = "I'm sorry, I couldn't generate a response. Please try again."

const outcomeOK = "ok"

type AgentSender interface {
	Send(ctx context.Context, message string) (domain.AgentReply, error)
}

type Recorder interface {
	ObserveRequest(outcome string)
	ObserveAgentCall(d time.Duration, ok bool)
	ObserveSanitized(direction string)
}

type AuditWriter interface {
	WriteRelay(ctx context.Context, rec domain.RelayRecord) error
}

// RelayService runs one chat request through validation, input
// sanitization, the agent call and reply sanitization. It holds no
// per-request state and is safe for concurrent use.
type RelayService struct {
	agent   AgentSender
	metrics Recorder
	audit   AuditWriter
	now     func() time.Time
}

type Option func(*RelayService)

func WithRecorder(r Recorder) Option {
	return func(s *RelayService) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithAuditWriter records every request's outcome. Audit failures are logged
// and never fail the request.
func WithAuditWriter(a AuditWriter) Option {
	return func(s *RelayService) {
		s.audit = a
	}
}

type RelayInput struct {
	Message       string
	CorrelationID string
}

type RelayOutput struct {
	Reply        string
	Blocks       []sanitize.Block
	UsedFallback bool
}

func NewRelayService(agent AgentSender, opts ...Option) (*RelayService, error) {
	if agent == nil {
		return nil, errors.New("usecase: agent sender must not be nil")
	}
	s := &RelayService{
		agent:   agent,
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DecodeRequest extracts the message from a ChatRequest body. A body that is
// not a JSON object, a missing or null message, a non-string message and an
// empty string are all validation errors.
func DecodeRequest(body []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", newError(ErrorInvalidInput, ReasonInvalidBody, err)
	}
	raw, ok := fields["message"]
	if !ok {
		return "", newError(ErrorInvalidInput, ReasonMissingMessage, nil)
	}
	var message *string
	if err := json.Unmarshal(raw, &message); err != nil || message == nil || *message == "" {
		return "", newError(ErrorInvalidInput, ReasonMissingMessage, err)
	}
	return *message, nil
}

// Relay returns either a sanitized reply or an *Error. Errors other than
// validation failures are logged here with full detail.
func (s *RelayService) Relay(ctx context.Context, in RelayInput) (RelayOutput, error) {
	start := s.now()
	var t trace
	out, err := s.relay(ctx, in, &t)
	s.finish(ctx, in, out, err, t, s.now().Sub(start))
	return out, err
}

// Reject records a request that failed before Relay could run, such as a body
// DecodeRequest refused, and returns it as an *Error. It is logged, counted
// and audited like a rejection inside Relay.
func (s *RelayService) Reject(ctx context.Context, correlationID string, err error) *Error {
	ucErr := AsError(err)
	s.finish(ctx, RelayInput{CorrelationID: correlationID}, RelayOutput{}, ucErr, trace{}, 0)
	return ucErr
}

// trace carries what finish needs to know about how far a request got.
type trace struct {
	inputModified bool
	inputChars    int
}

func (s *RelayService) relay(ctx context.Context, in RelayInput, t *trace) (RelayOutput, error) {
	if in.Message == "" {
		return RelayOutput{}, newError(ErrorInvalidInput, ReasonMissingMessage, nil)
	}

	message := sanitize.Input(in.Message)
	t.inputChars = utf8.RuneCountInString(message)
	if message == "" {
		return RelayOutput{}, newError(ErrorInvalidInput, ReasonEmptyAfterSanitization, nil)
	}
	if message != strings.TrimSpace(in.Message) {
		t.inputModified = true
		s.metrics.ObserveSanitized("input")
	}

	callStart := s.now()
	reply, err := s.agent.Send(ctx, message)
	s.metrics.ObserveAgentCall(s.now().Sub(callStart), err == nil)
	if err != nil {
		return RelayOutput{}, classifyAgentError(err)
	}

	usedFallback := false
	text, ok := reply.Text()
	if !ok {
		text = FallbackReply
		usedFallback = true
	}
	clean := sanitize.Response(text)
	if clean != strings.TrimSpace(text) {
		s.metrics.ObserveSanitized("response")
	}
	if clean == "" {
		clean = FallbackReply
		usedFallback = true
	}

	return RelayOutput{
		Reply:        clean,
		Blocks:       sanitize.Format(clean),
		UsedFallback: usedFallback,
	}, nil
}

func classifyAgentError(err error) *Error {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return newError(ErrorConfiguration, ReasonAgentNotConfigured, err)
	case isAuthFailure(err):
		return newError(ErrorAuthentication, ReasonAgentAuthFailed, err)
	default:
		return newError(ErrorUpstream, ReasonAgentRequestFailed, err)
	}
}

func (s *RelayService) finish(ctx context.Context, in RelayInput, out RelayOutput, err error, t trace, elapsed time.Duration) {
	rec := domain.RelayRecord{
		CorrelationID: in.CorrelationID,
		Outcome:       outcomeOK,
		InputModified: t.inputModified,
		InputChars:    t.inputChars,
		ReplyChars:    utf8.RuneCountInString(out.Reply),
		UsedFallback:  out.UsedFallback,
		LatencyMillis: elapsed.Milliseconds(),
	}

	if err != nil {
		ucErr := AsError(err)
		rec.Outcome = string(ucErr.Code)
		rec.Reason = ucErr.Reason
		if ucErr.Code == ErrorInvalidInput {
			slog.InfoContext(ctx, "relay rejected", "correlation_id", in.CorrelationID, "reason", ucErr.Reason)
		} else {
			slog.ErrorContext(ctx, "relay failed",
				"correlation_id", in.CorrelationID,
				"code", ucErr.Code,
				"reason", ucErr.Reason,
				"err", ucErr.Err,
				"duration_ms", rec.LatencyMillis,
			)
		}
	} else {
		slog.InfoContext(ctx, "relay complete",
			"correlation_id", in.CorrelationID,
			"input_modified", t.inputModified,
			"used_fallback", out.UsedFallback,
			"duration_ms", rec.LatencyMillis,
		)
	}
	s.metrics.ObserveRequest(rec.Outcome)

	if s.audit == nil || in.CorrelationID == "" {
		return
	}
	if auditErr := s.audit.WriteRelay(ctx, rec); auditErr != nil {
		slog.WarnContext(ctx, "relay audit write failed", "correlation_id", in.CorrelationID, "err", auditErr)
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string)                {}
func (nopRecorder) ObserveAgentCall(time.Duration, bool) {}
func (nopRecorder) ObserveSanitized(string)              {}
