package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-fin/meridian-fin/internal/access"
	"github.com/meridian-fin/meridian-fin/internal/auth"
	"github.com/meridian-fin/meridian-fin/internal/shared"
	_ "github.com/meridian-fin/meridian-fin/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions []string
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(_ context.Context, id string, _ int64, _ time.Time, _, _ string) error {
	s.sessions = append(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	for i, v := range s.sessions {
		if v == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	return nil
}

type stubGrants struct {
	assignments []access.Assignment
}

func (s *stubGrants) ActorBindings(context.Context, int64) ([]int64, []int64, error) {
	return nil, nil, nil
}

func (s *stubGrants) ActorAssignments(context.Context, int64) ([]access.Assignment, error) {
	return s.assignments, nil
}

func (s *stubGrants) CompaniesInClusters(context.Context, []int64) ([]int64, error) {
	return nil, nil
}

func testUser(t *testing.T) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{
		ID:           42,
		Email:        "riley@meridian.example",
		Name:         "Riley",
		PasswordHash: string(hash),
		IsActive:     true,
	}
}

func newAuthHandler(t *testing.T, repo auth.Repository, grants access.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	resolver := access.NewResolver(grants, access.DefaultConfig())
	handler := auth.NewHandler(nil, auth.NewService(repo), resolver, sessions)
	return handler, sessions
}

// serve runs the request through the session lifecycle the way the
// router middleware does.
func serve(t *testing.T, handler *auth.Handler, sessions *shared.SessionManager, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	sess, err := sessions.Load(req.Context(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	router := chi.NewRouter()
	router.Route("/auth", handler.MountRoutes)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if err := sessions.Commit(req.Context(), rec, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return rec
}

func TestLoginSuccessSetsClaims(t *testing.T) {
	companyID := int64(7)
	grants := &stubGrants{assignments: []access.Assignment{{
		ID: 1, ActorID: 42, CompanyID: &companyID, Role: access.RoleReviewer, Active: true,
	}}}
	repo := &stubRepo{user: testUser(t)}
	handler, sessions := newAuthHandler(t, repo, grants)

	body := `{"email":"riley@meridian.example","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, handler, sessions, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ActorID    int64   `json:"actor_id"`
		Role       string  `json:"role"`
		CompanyIDs []int64 `json:"company_ids"`
		AllAccess  bool    `json:"all_access"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ActorID != 42 || resp.Role != string(access.RoleReviewer) {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.AllAccess || len(resp.CompanyIDs) != 1 || resp.CompanyIDs[0] != 7 {
		t.Fatalf("scope = %+v", resp)
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("session records = %d want 1", len(repo.sessions))
	}
	var sawCookie bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessions.CookieName() && c.Value != "" {
			sawCookie = true
		}
	}
	if !sawCookie {
		t.Fatal("expected a session cookie on login")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := &stubRepo{user: testUser(t)}
	handler, sessions := newAuthHandler(t, repo, &stubGrants{})

	body := `{"email":"riley@meridian.example","password":"wrong-password"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, handler, sessions, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d want 401", rec.Code)
	}
}

func TestLoginUnknownUserReadsSameAsWrongPassword(t *testing.T) {
	handler, sessions := newAuthHandler(t, &stubRepo{}, &stubGrants{})

	body := `{"email":"nobody@meridian.example","password":"whatever-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, handler, sessions, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d want 401", rec.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	handler, sessions := newAuthHandler(t, &stubRepo{}, &stubGrants{})

	body := `{"email":"not-an-email","password":"short"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, handler, sessions, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d want 400", rec.Code)
	}
}

func TestMeRequiresSession(t *testing.T) {
	handler, sessions := newAuthHandler(t, &stubRepo{}, &stubGrants{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := serve(t, handler, sessions, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d want 401", rec.Code)
	}
}
