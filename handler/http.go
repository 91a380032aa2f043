package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"query-assistant/internal/usecase"
)

const maxBodyBytes = 1 << 20

// HTTP returns the net/http handler: routes, correlation ids, request logging
// and CORS.
func (h *Handler) HTTP() http.Handler {
	mux := http.NewServeMux()
	for pattern, ep := range h.routes() {
		mux.Handle(pattern, h.serve(pattern, ep))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", correlationHeader},
		ExposedHeaders: []string{correlationHeader},
	})
	return c.Handler(h.logRequests(mux))
}

// NewServer binds the HTTP handler to addr.
func (h *Handler) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.HTTP(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *Handler) serve(route string, ep endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			body []byte
			err  error
		)
		if r.Body != nil {
			body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		}
		if err != nil {
			bodyErr := &usecase.Error{
				Code:    usecase.ErrorInvalidInput,
				Reason:  "unreadable_body",
				Message: "Request body could not be read",
				Err:     err,
			}
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				bodyErr.Reason = "body_too_large"
				bodyErr.Message = "Request body exceeds " + strconv.Itoa(maxBodyBytes) + " bytes"
			}
			writeJSON(w, h.failure(r.Context(), route, bodyErr, failureMessage(route)))
			return
		}
		writeJSON(w, h.invoke(r.Context(), route, ep, body))
	}
}

func writeJSON(w http.ResponseWriter, rep reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	_ = json.NewEncoder(w).Encode(rep.body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests attaches the correlation id and logs one line per request.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := correlationIDOrNew(r.Header.Get(correlationHeader))
		w.Header().Set(correlationHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(withCorrelationID(r.Context(), id)))

		h.logger.Info("request completed",
			zap.String("correlation_id", id),
			zap.String("method", r.Method),
			zap.String("route", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
