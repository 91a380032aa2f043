package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"query-assistant/internal/usecase"
)

type notFoundResponse struct {
	Error string `json:"error"`
}

// Handle serves one API Gateway proxy event through the same route table as
// the HTTP server.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	correlationID := correlationIDOrNew(headerValue(event.Headers, correlationHeader))
	ctx = withCorrelationID(ctx, correlationID)

	path := event.Path
	if path == "" {
		path = event.Resource
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	route := strings.ToUpper(event.HTTPMethod) + " " + path

	var rep reply
	if ep, ok := h.routes()[route]; ok {
		body, err := eventBody(event)
		if err != nil {
			rep = h.failure(ctx, route, &usecase.Error{
				Code:    usecase.ErrorInvalidInput,
				Reason:  "invalid_base64_body",
				Message: "Request body could not be decoded",
				Err:     err,
			}, failureMessage(route))
		} else {
			rep = h.invoke(ctx, route, ep, body)
		}
	} else {
		rep = reply{status: http.StatusNotFound, body: notFoundResponse{Error: "route not found"}}
	}

	h.logger.Info("request completed",
		zap.String("correlation_id", correlationID),
		zap.String("method", event.HTTPMethod),
		zap.String("route", path),
		zap.Int("status", rep.status),
		zap.Duration("duration", time.Since(start)))

	return toProxyResponse(rep, correlationID), nil
}

func eventBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

func toProxyResponse(rep reply, correlationID string) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(rep.body)
	if err != nil {
		rep.status = http.StatusInternalServerError
		payload = []byte(`{"success":false,"error":"Internal server error","message":"Failed to encode response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: rep.status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(payload),
	}
}
