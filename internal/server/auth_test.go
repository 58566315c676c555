package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dutyline/internal/config"
	"dutyline/internal/db"
	"dutyline/internal/domain"
	"dutyline/internal/engine"
	"dutyline/internal/migrate"
	"dutyline/internal/repo"
)

const testSecret = "test-secret"

func newAuthedServer(t *testing.T) testServer {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("acme-co"))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateClient(ctx, "acme-co", "Acme Co", ""); err != nil {
		t.Fatalf("create client: %v", err)
	}
	now := domain.Timestamp(eng.Now())
	users := []domain.User{
		{ID: "user-manager", Name: "Avery", Role: domain.RoleManager, CreatedAt: now},
		{ID: "user-staff", Name: "Jordan", Role: domain.RoleStaff, CreatedAt: now},
	}
	for _, u := range users {
		if err := eng.Repo.InsertUser(ctx, nil, u); err != nil {
			t.Fatalf("insert user: %v", err)
		}
	}
	if err := eng.Repo.InsertAPIKey(ctx, nil, domain.APIKey{
		ID:        "key-1",
		UserID:    "user-manager",
		KeyHash:   repo.HashAPIKey("manager-key"),
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	handler, err := New(Config{
		Engine:   eng,
		BasePath: "/api",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowAPIKeys: true},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return testServer{BaseURL: "http://" + ln.Addr().String(), Engine: eng}
}

func signToken(t *testing.T, subject string, roles []string) string {
	t.Helper()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doAuthed(t *testing.T, ts testServer, method, path string, header, value string) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.BaseURL+path, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if header != "" {
		req.Header.Set(header, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestAuthRequired(t *testing.T) {
	ts := newAuthedServer(t)

	if got := doAuthed(t, ts, http.MethodGet, "/api/clients", "", ""); got != http.StatusUnauthorized {
		t.Fatalf("no credentials: status %d", got)
	}
	if got := doAuthed(t, ts, http.MethodGet, "/api/health", "", ""); got != http.StatusOK {
		t.Fatalf("health should bypass auth: status %d", got)
	}
	if got := doAuthed(t, ts, http.MethodGet, "/api/clients", "Authorization", "Bearer not-a-token"); got != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", got)
	}
}

func TestAuthJWTRoles(t *testing.T) {
	ts := newAuthedServer(t)

	manager := signToken(t, "user-manager", []string{domain.RoleManager})
	if got := doAuthed(t, ts, http.MethodGet, "/api/clients", "Authorization", "Bearer "+manager); got != http.StatusOK {
		t.Fatalf("manager token: status %d", got)
	}

	staff := signToken(t, "user-staff", []string{domain.RoleStaff})
	if got := doAuthed(t, ts, http.MethodGet, "/api/clients", "Authorization", "Bearer "+staff); got != http.StatusForbidden {
		t.Fatalf("staff token on manager route: status %d", got)
	}
	// Core dashboard routes only need authentication, not the manager role.
	if got := doAuthed(t, ts, http.MethodGet, "/api/duties?clientId=acme-co", "Authorization", "Bearer "+staff); got != http.StatusOK {
		t.Fatalf("staff token on summary: status %d", got)
	}
}

func TestAuthAPIKey(t *testing.T) {
	ts := newAuthedServer(t)

	if got := doAuthed(t, ts, http.MethodGet, "/api/clients", "X-Api-Key", "manager-key"); got != http.StatusOK {
		t.Fatalf("valid api key: status %d", got)
	}
	if got := doAuthed(t, ts, http.MethodGet, "/api/clients", "X-Api-Key", "wrong-key"); got != http.StatusUnauthorized {
		t.Fatalf("bad api key: status %d", got)
	}
}
