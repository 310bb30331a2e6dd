package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Service verifies bearer keys for the REST surface against a bcrypt hash
// supplied at startup.
type Service struct {
	keyHash string
}

// NewService creates an auth service. An empty hash disables the REST
// surface: every request is rejected.
func NewService(apiKeyHash string) *Service {
	if apiKeyHash == "" {
		log.Warn().Msg("API_KEY_HASH not set, REST endpoints will reject all requests")
	}
	return &Service{keyHash: apiKeyHash}
}

// Middleware authenticates Bearer requests.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.keyHash == "" {
			writeJSONError(w, http.StatusUnauthorized, "api access not configured")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		apiKey := parts[1]
		if apiKey == "" {
			writeJSONError(w, http.StatusUnauthorized, "empty api key")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(s.keyHash), []byte(apiKey)); err != nil {
			log.Warn().Msg("Rejected request with invalid api key")
			writeJSONError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON error response")
	}
}
