package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-relay/internal/middleware"
	"chat-relay/internal/sanitize"
	"chat-relay/internal/usecase"
)

// maxBodyBytes bounds the raw request body. Messages are capped much lower
// after sanitization; this only stops oversized payloads early.
const maxBodyBytes = 64 << 10

type Relayer interface {
	Relay(ctx context.Context, in usecase.RelayInput) (usecase.RelayOutput, error)
	// Reject records a request refused before Relay and returns its error.
	Reject(ctx context.Context, correlationID string, err error) *usecase.Error
}

// chatResponse is the only success shape: the sanitized reply text and the
// same text split into display blocks.
type chatResponse struct {
	Reply  string           `json:"reply"`
	Blocks []sanitize.Block `json:"blocks"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type Handler struct {
	relay Relayer
}

func NewHandler(r Relayer) (*Handler, error) {
	if r == nil {
		return nil, errors.New("handler: relayer must not be nil")
	}
	return &Handler{relay: r}, nil
}

// Handle serves an API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := strings.TrimSpace(headerValue(event.Headers, middleware.CorrelationHeader))
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	ctx = middleware.WithCorrelationID(ctx, correlationID)

	if event.HTTPMethod != "" && event.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "Method not allowed", Code: "METHOD_NOT_ALLOWED"}), nil
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			status, payload := h.rejectBody(ctx, correlationID, err)
			return jsonResponse(status, correlationID, payload), nil
		}
		body = decoded
	}

	status, payload := h.serve(ctx, correlationID, body)
	return jsonResponse(status, correlationID, payload), nil
}

// serve runs a raw ChatRequest body through the relay and returns the HTTP
// status and JSON payload. Both transports share it.
func (h *Handler) serve(ctx context.Context, correlationID string, body []byte) (int, any) {
	if len(body) > maxBodyBytes {
		return h.rejectBody(ctx, correlationID, errors.New("request body too large"))
	}
	message, err := usecase.DecodeRequest(body)
	if err != nil {
		return errorPayload(h.relay.Reject(ctx, correlationID, err))
	}
	out, err := h.relay.Relay(ctx, usecase.RelayInput{Message: message, CorrelationID: correlationID})
	if err != nil {
		return errorPayload(err)
	}
	return http.StatusOK, chatResponse{Reply: out.Reply, Blocks: out.Blocks}
}

// rejectBody refuses a body that could not be read or decoded as bytes.
func (h *Handler) rejectBody(ctx context.Context, correlationID string, cause error) (int, any) {
	err := &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: usecase.ReasonInvalidBody, Err: cause}
	return errorPayload(h.relay.Reject(ctx, correlationID, err))
}

func errorPayload(err error) (int, any) {
	ucErr := usecase.AsError(err)
	return statusFor(ucErr.Code), errorResponse{Error: ucErr.PublicMessage(), Code: string(ucErr.Code)}
}

func statusFor(code usecase.ErrorCode) int {
	if code == usecase.ErrorInvalidInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func jsonResponse(status int, correlationID string, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"` + usecase.MessageUnavailable + `","code":"` + string(usecase.ErrorUpstream) + `"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":               "application/json",
			middleware.CorrelationHeader: correlationID,
		},
		Body: string(body),
	}
}

// headerValue looks up key case-insensitively; API Gateway preserves the
// caller's header casing.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

var newCorrelationID = func() string {
	return uuid.NewString()
}
