package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"query-assistant/internal/usecase"
)

const (
	routeAddText     = "POST /api/addtext"
	routeGenerateSQL = "POST /api/generateSQL"
	routeHealth      = "GET /health"
)

const (
	msgChatOK    = "Response generated successfully"
	msgChatFail  = "Failed to generate response"
	msgQueryOK   = "SQL query generated successfully"
	msgQueryFail = "Failed to generate SQL query"
)

// reply is a transport-neutral response.
type reply struct {
	status int
	body   any
}

type endpoint func(ctx context.Context, body []byte) reply

type healthResponse struct {
	Status string `json:"status"`
}

// routes is the table both transports serve. Keys use ServeMux pattern syntax.
func (h *Handler) routes() map[string]endpoint {
	return map[string]endpoint{
		routeAddText:     h.addText,
		routeGenerateSQL: h.generateSQL,
		routeHealth:      h.health,
	}
}

func (h *Handler) addText(ctx context.Context, body []byte) reply {
	prompt, err := stringField(body, "prompt", "Prompt")
	if err != nil {
		return h.failure(ctx, routeAddText, err, msgChatFail)
	}
	out, err := h.svc.Chat(ctx, usecase.ChatInput{Prompt: prompt})
	if err != nil {
		return h.failure(ctx, routeAddText, err, msgChatFail)
	}
	return reply{status: http.StatusOK, body: OK(FieldResponse, out.Response, msgChatOK)}
}

func (h *Handler) generateSQL(ctx context.Context, body []byte) reply {
	query, err := stringField(body, "query", "Query")
	if err != nil {
		return h.failure(ctx, routeGenerateSQL, err, msgQueryFail)
	}
	out, err := h.svc.GenerateQuery(ctx, usecase.QueryInput{Query: query})
	if err != nil {
		return h.failure(ctx, routeGenerateSQL, err, msgQueryFail)
	}
	return reply{status: http.StatusOK, body: OK(FieldSQLQuery, out.Query, msgQueryOK)}
}

func (h *Handler) health(context.Context, []byte) reply {
	return reply{status: http.StatusOK, body: healthResponse{Status: "healthy"}}
}

func (h *Handler) failure(ctx context.Context, route string, err error, message string) reply {
	code := usecase.CodeOf(err)
	fields := []zap.Field{
		zap.String("correlation_id", CorrelationID(ctx)),
		zap.String("route", route),
		zap.String("code", string(code)),
		zap.Error(err),
	}
	if code == usecase.ErrorInvalidInput {
		h.logger.Info("request rejected", fields...)
	} else {
		h.logger.Error("request failed", fields...)
	}
	return reply{status: h.statusFor(code), body: Fail(err, message)}
}

// statusFor keeps the historical 500-for-everything contract unless strict
// mapping is enabled.
func (h *Handler) statusFor(code usecase.ErrorCode) int {
	if !h.opts.StrictStatus {
		return http.StatusInternalServerError
	}
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// invoke runs ep and converts a panic into a failure envelope.
func (h *Handler) invoke(ctx context.Context, route string, ep endpoint, body []byte) (r reply) {
	defer func() {
		if rec := recover(); rec != nil {
			err := &usecase.Error{
				Code:    usecase.ErrorInternal,
				Reason:  "panic",
				Message: "Internal server error",
				Err:     fmt.Errorf("panic: %v", rec),
			}
			r = h.failure(ctx, route, err, failureMessage(route))
		}
	}()
	return ep(ctx, body)
}

func failureMessage(route string) string {
	if route == routeGenerateSQL {
		return msgQueryFail
	}
	return msgChatFail
}

// stringField extracts a string member from a JSON object body. A missing,
// null or empty body yields "" so the service reports the field as required.
func stringField(body []byte, key, label string) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", &usecase.Error{
			Code:    usecase.ErrorInvalidInput,
			Reason:  "invalid_json",
			Message: "Request body must be a JSON object",
			Err:     err,
		}
	}
	raw, ok := obj[key]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &usecase.Error{
			Code:    usecase.ErrorInvalidInput,
			Reason:  "invalid_" + key,
			Message: label + " must be a string",
			Err:     err,
		}
	}
	return s, nil
}
