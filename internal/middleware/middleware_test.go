package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/admin-chat/pkg/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject string, scopes ...string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: scopes,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuth(t *testing.T) {
	var gotUser string
	var gotScopes []string
	h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotScopes = GetScopes(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + signToken(t, "other", "1"), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, testSecret, "42", ScopeChatWrite), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	assert.Equal(t, "42", gotUser)
	assert.Equal(t, []string{ScopeChatWrite}, gotScopes)
}

func TestRequireScope(t *testing.T) {
	h := Auth(testSecret)(RequireScope(ScopeChatWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "1", ScopeChatWrite))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoggingSetsCorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Correlation-ID"))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
}

func TestLoggingRecordsAuthenticatedOperator(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	h := Logging(log)(Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "42"))
	req.Header.Set("X-Correlation-ID", "corr-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "42", fields["operator_id"])
	assert.Equal(t, "corr-1", fields["correlation_id"])
}

func TestGetOperatorID(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "42")
	id, ok := GetOperatorID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, subject := range []string{"", "admin-1", "0", "-5"} {
		_, ok := GetOperatorID(context.WithValue(context.Background(), UserIDKey, subject))
		assert.False(t, ok, subject)
	}
}

func TestValidation(t *testing.T) {
	id, err := ParseConversationID("17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)

	for _, bad := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := ParseConversationID(bad)
		assert.Error(t, err, bad)
	}

	assert.NoError(t, ValidateMessageContent(""))
	assert.NoError(t, ValidateMessageContent("hello"))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", MaxMessageBytes+1)))
	assert.Error(t, ValidateMessageContent(string([]byte{0xff, 0xfe})))

	assert.Equal(t, 5, ParsePositiveInt("", 5, 100))
	assert.Equal(t, 5, ParsePositiveInt("nope", 5, 100))
	assert.Equal(t, 5, ParsePositiveInt("-1", 5, 100))
	assert.Equal(t, 7, ParsePositiveInt("7", 5, 100))
	assert.Equal(t, 100, ParsePositiveInt("1000", 5, 100))
}
