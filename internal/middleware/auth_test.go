package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestJWTRoundTrip(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()

	token, err := auth.GenerateAccessToken(userID, RoleEditor)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	gotID, gotRole, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if gotID != userID {
		t.Errorf("user id = %v, want %v", gotID, userID)
	}
	if gotRole != RoleEditor {
		t.Errorf("role = %q, want %q", gotRole, RoleEditor)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	token, _ := NewJWTAuth("secret-a").GenerateAccessToken(uuid.New(), RoleEditor)

	if _, _, err := NewJWTAuth("secret-b").VerifyToken(token); err == nil {
		t.Error("token signed with another secret verified successfully")
	}
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID := uuid.New()
	token, _ := auth.GenerateAccessToken(userID, RoleViewer)

	var seenID uuid.UUID
	var seenRole string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetUserID(r.Context())
		seenRole = GetRole(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("middleware returned %d, want 200", rr.Code)
	}
	if seenID != userID {
		t.Errorf("context user id = %v, want %v", seenID, userID)
	}
	if seenRole != RoleViewer {
		t.Errorf("context role = %q, want %q", seenRole, RoleViewer)
	}
}

func TestMiddlewareRejectsBadHeaders(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with invalid auth")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("returned %d, want 401", rr.Code)
			}
		})
	}
}
