package handler

import "query-assistant/internal/usecase"

// Field names the success payload key of an envelope.
type Field string

const (
	FieldResponse Field = "response"
	FieldSQLQuery Field = "sqlQuery"
)

// Envelope is the body of every /api response. Exactly one of Response,
// SQLQuery and Error is set.
type Envelope struct {
	Success  bool    `json:"success"`
	Response *string `json:"response,omitempty"`
	SQLQuery *string `json:"sqlQuery,omitempty"`
	Error    *string `json:"error,omitempty"`
	Message  string  `json:"message"`
}

// OK builds a success envelope carrying value under field.
func OK(field Field, value, message string) Envelope {
	env := Envelope{Success: true, Message: message}
	if field == FieldSQLQuery {
		env.SQLQuery = &value
	} else {
		env.Response = &value
	}
	return env
}

// Fail builds a failure envelope from err's caller-facing message.
func Fail(err error, message string) Envelope {
	text := usecase.MessageOf(err)
	if text == "" {
		text = "Unknown error"
	}
	return Envelope{Success: false, Error: &text, Message: message}
}
