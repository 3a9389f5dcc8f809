package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "webdir/pkg/domain"
	"webdir/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return v.claims, v.err
}

func capture(seen *id.UserID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = requestcontext.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	user := uuid.New()

	tests := []struct {
		name      string
		header    string
		validator stubValidator
		status    int
		wantUser  bool
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized, false},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized, false},
		{"invalid token", "Bearer bad", stubValidator{err: errors.New("bad")}, http.StatusUnauthorized, false},
		{"non uuid subject", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: "alice"}}, http.StatusUnauthorized, false},
		{"valid token", "Bearer ok", stubValidator{claims: &JWTClaims{UserID: user.String()}}, http.StatusNoContent, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen id.UserID
			h := RequireAuth(tc.validator, logger)(capture(&seen))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.wantUser {
				assert.Equal(t, id.UserID(user), seen)
			} else {
				assert.True(t, seen.IsNil())
			}
		})
	}
}

func TestOptionalAuth_AllowsAnonymous(t *testing.T) {
	var seen id.UserID
	h := OptionalAuth(stubValidator{}, slog.New(slog.DiscardHandler))(capture(&seen))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, seen.IsNil())
}

func TestOptionalAuth_RejectsBadToken(t *testing.T) {
	var seen id.UserID
	h := OptionalAuth(stubValidator{err: errors.New("expired")}, slog.New(slog.DiscardHandler))(capture(&seen))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
