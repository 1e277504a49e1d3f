package middleware

import (
	"crypto/subtle"
	"net/http"
)

// SecretTokenHeader carries the secret set with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecret rejects webhook deliveries without the configured secret.
// An empty secret disables the check.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(SecretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"status":"error","error":"invalid secret token"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
