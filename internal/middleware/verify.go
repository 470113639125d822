// Package middleware provides HTTP middleware for the interactions endpoint.
package middleware

import (
	"bytes"
	"crypto/ed25519"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/rolelink/internal/discord"
)

const maxBodyBytes = 1 << 20

// VerifySignature returns middleware that rejects requests whose
// X-Signature-Ed25519 header does not verify against key. Discord probes the
// endpoint with bad signatures and expects a 401.
func VerifySignature(key ed25519.PublicKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}

			sig := r.Header.Get("X-Signature-Ed25519")
			ts := r.Header.Get("X-Signature-Timestamp")
			if err := discord.Verify(key, sig, ts, body); err != nil {
				slog.Debug("Rejected unsigned interaction", "remote_addr", r.RemoteAddr)
				http.Error(w, "invalid request signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
