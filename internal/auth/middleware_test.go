package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func protectedHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sk-valid-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generating hash: %v", err)
	}

	tests := []struct {
		name       string
		keyHash    string
		authHeader string
		wantStatus int
		wantCalled bool
	}{
		{"valid key", string(hash), "Bearer sk-valid-key", http.StatusOK, true},
		{"bearer lowercase", string(hash), "bearer sk-valid-key", http.StatusOK, true},
		{"wrong key", string(hash), "Bearer sk-wrong", http.StatusUnauthorized, false},
		{"missing header", string(hash), "", http.StatusUnauthorized, false},
		{"not bearer", string(hash), "Basic abc", http.StatusUnauthorized, false},
		{"empty key", string(hash), "Bearer ", http.StatusUnauthorized, false},
		{"not configured", "", "Bearer sk-valid-key", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(tt.keyHash)
			var called bool
			req := httptest.NewRequest(http.MethodPost, "/v1/render", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			s.Middleware(protectedHandler(&called)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}
