package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name       string
		role       Role
		permission Permission
		want       bool
	}{
		{"admin account:read", RoleAdmin, PermissionAccountRead, true},
		{"admin account:write", RoleAdmin, PermissionAccountWrite, true},
		{"admin account:delete", RoleAdmin, PermissionAccountDelete, true},
		{"admin credits:grant", RoleAdmin, PermissionCreditsGrant, true},
		{"admin usage:read", RoleAdmin, PermissionUsageRead, true},

		{"billing account:read", RoleBilling, PermissionAccountRead, true},
		{"billing account:write", RoleBilling, PermissionAccountWrite, false},
		{"billing account:delete", RoleBilling, PermissionAccountDelete, false},
		{"billing credits:grant", RoleBilling, PermissionCreditsGrant, true},
		{"billing usage:read", RoleBilling, PermissionUsageRead, true},

		{"viewer account:read", RoleViewer, PermissionAccountRead, true},
		{"viewer account:write", RoleViewer, PermissionAccountWrite, false},
		{"viewer credits:grant", RoleViewer, PermissionCreditsGrant, false},
		{"viewer usage:read", RoleViewer, PermissionUsageRead, true},

		{"unknown role", Role("unknown"), PermissionAccountRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.permission); got != tt.want {
				t.Errorf("HasPermission(%v, %v) = %v, want %v", tt.role, tt.permission, got, tt.want)
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	password := "test-password-123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword() returned empty hash")
	}
	if hash == password {
		t.Error("hash equals plaintext password")
	}
}

func TestAuthenticate(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	repo := NewStaticAdminRepository("operator", hash)
	authn := NewAuthenticator(repo)

	t.Run("valid credentials", func(t *testing.T) {
		user, err := authn.Authenticate(context.Background(), "operator", "correct-horse")
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
		if user.Username != "operator" {
			t.Errorf("username = %q, want %q", user.Username, "operator")
		}
		if user.Role != RoleAdmin {
			t.Errorf("role = %q, want %q", user.Role, RoleAdmin)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := authn.Authenticate(context.Background(), "operator", "wrong")
		if !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("error = %v, want %v", err, ErrInvalidPassword)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := authn.Authenticate(context.Background(), "nobody", "correct-horse")
		if !errors.Is(err, ErrUserNotFound) {
			t.Errorf("error = %v, want %v", err, ErrUserNotFound)
		}
	})
}

func TestRequireAuth(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	mw := NewMiddleware(NewAuthenticator(NewStaticAdminRepository("operator", hash)))

	var sawUser *AdminUser
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUser, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := mw.RequireAuth(next)

	t.Run("no credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Error("WWW-Authenticate header missing")
		}
	})

	t.Run("bad password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
		req.SetBasicAuth("operator", "nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
		req.SetBasicAuth("operator", "secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if sawUser == nil || sawUser.Username != "operator" {
			t.Errorf("user in context = %+v, want operator", sawUser)
		}
	})
}

func TestRequirePermission(t *testing.T) {
	mw := NewMiddleware(nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := mw.RequirePermission(PermissionAccountDelete)(next)

	t.Run("viewer forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/admin/accounts/x", nil)
		ctx := WithUser(req.Context(), &AdminUser{Username: "v", Role: RoleViewer})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))

		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("admin allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/admin/accounts/x", nil)
		ctx := WithUser(req.Context(), &AdminUser{Username: "a", Role: RoleAdmin})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("no user in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/admin/accounts/x", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}
