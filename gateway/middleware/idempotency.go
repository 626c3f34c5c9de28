package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
)

// IdempotencyStore persists responses keyed by Idempotency-Key. A key reused
// with a different request hash must fail the lookup.
type IdempotencyStore interface {
	SaveIdempotentResponse(ctx context.Context, key, requestHash string, status int, body []byte) error
	IdempotentResponse(ctx context.Context, key, requestHash string) (status int, body []byte, found bool, err error)
}

// WithIdempotency replays the stored response for requests that repeat an
// Idempotency-Key with an identical body, and rejects reuse of a key with a
// different body. Requests without the header pass through untouched.
func WithIdempotency(store IdempotencyStore, logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" || store == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "unable to read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		hash := hashRequest(r.Method, r.URL.Path, body)

		status, stored, found, err := store.IdempotentResponse(r.Context(), key, hash)
		if err != nil {
			http.Error(w, "idempotency key conflict", http.StatusConflict)
			return
		}
		if found {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write(stored)
			return
		}

		recorder := &bufferingRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if err := store.SaveIdempotentResponse(r.Context(), key, hash, recorder.status, recorder.buf.Bytes()); err != nil {
			logger.Warn("failed to persist idempotent response", "error", err)
		}
	})
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

type bufferingRecorder struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (b *bufferingRecorder) WriteHeader(status int) {
	b.status = status
	b.ResponseWriter.WriteHeader(status)
}

func (b *bufferingRecorder) Write(p []byte) (int, error) {
	b.buf.Write(p)
	return b.ResponseWriter.Write(p)
}
