package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"softphone-dialer/internal/audit"
	"softphone-dialer/internal/auth"
	"softphone-dialer/internal/calls"
	"softphone-dialer/internal/config"
	"softphone-dialer/internal/dialer"
	"softphone-dialer/internal/directory"
	"softphone-dialer/internal/reporting"
	"softphone-dialer/internal/session"

	"github.com/gin-gonic/gin"
)

type nopSignaler struct{ placed []string }

func (s *nopSignaler) PlaceCall(ctx context.Context, number string) error {
	s.placed = append(s.placed, number)
	return nil
}

func (s *nopSignaler) Hangup(ctx context.Context) error               { return nil }
func (s *nopSignaler) SendDigits(ctx context.Context, d string) error { return nil }
func (s *nopSignaler) Transfer(ctx context.Context, n string) error   { return nil }

var _ session.Signaler = (*nopSignaler)(nil)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newHandlers(t *testing.T, recs ...calls.Record) (Handlers, *nopSignaler) {
	t.Helper()
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := directory.NewMemoryRepo()
	repo.Seed(recs...)
	sig := &nopSignaler{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := dialer.New(dialer.Config{AgentID: "agent-1"}, repo, sig, nil, log)
	if err := ctrl.RefreshQueue(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return Handlers{
		Auth:         m,
		Dialer:       ctrl,
		AgentID:      "agent-1",
		PasswordHash: hash,
		Now:          func() time.Time { return testNow },
	}, sig
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func engine(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/calls/:id/place", h.PlaceCall)
	r.POST("/calls/hangup", h.HangUp)
	r.POST("/calls/digits", h.SendDigits)
	r.POST("/outcome", h.LogOutcome)
	r.DELETE("/queue/:id", h.RemoveCall)
	return r
}

func TestLogin_IssuesPairForAgent(t *testing.T) {
	h, _ := newHandlers(t)
	w := do(engine(h), http.MethodPost, "/auth/login", gin.H{"agent_id": "agent-1", "password": "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := h.Auth.Verify(pair.AccessToken, auth.TokenTypeAccess, testNow)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AgentID != "agent-1" || claims.Role != "agent" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	h, _ := newHandlers(t)
	r := engine(h)
	cases := []gin.H{
		{"agent_id": "agent-1", "password": "wrong"},
		{"agent_id": "agent-2", "password": "s3cret"},
	}
	for _, body := range cases {
		if w := do(r, http.MethodPost, "/auth/login", body); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %v, got %d", body, w.Code)
		}
	}
	if w := do(r, http.MethodPost, "/auth/login", gin.H{"agent_id": "agent-1"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without password, got %d", w.Code)
	}
}

func TestRefresh_OnlyAcceptsRefreshTokens(t *testing.T) {
	h, _ := newHandlers(t)
	r := engine(h)
	pair, err := h.Auth.IssuePair(testNow, "agent-1", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	w := do(r, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": pair.AccessToken}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token, got %d", w.Code)
	}
}

func TestPlaceCall_ReturnsSessionOrMappedError(t *testing.T) {
	h, sig := newHandlers(t,
		calls.Record{ID: "c1", Name: "Alice", Phone: "+3211"},
		calls.Record{ID: "c2", Name: "Bob"},
	)
	r := engine(h)

	if w := do(r, http.MethodPost, "/calls/c2/place", nil); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for record without number, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/calls/missing/place", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w := do(r, http.MethodPost, "/calls/c1/place", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var info session.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.State != session.Dialing || info.Target != "c1" {
		t.Fatalf("unexpected session %+v", info)
	}
	if len(sig.placed) != 1 || sig.placed[0] != "+3211" {
		t.Fatalf("unexpected placed numbers %v", sig.placed)
	}

	if w := do(r, http.MethodPost, "/calls/c1/place", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a call is active, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/queue/c1", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 removing the active call, got %d", w.Code)
	}
}

func TestCommandsWithoutCall_Conflict(t *testing.T) {
	h, _ := newHandlers(t, calls.Record{ID: "c1", Name: "Alice", Phone: "+3211"})
	r := engine(h)

	if w := do(r, http.MethodPost, "/calls/hangup", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 hangup, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/calls/digits", gin.H{"digits": "1"}); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 digits, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/calls/digits", gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without digits, got %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/outcome", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 with no outcome, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/queue/c1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestStatusFor_WrappedErrors(t *testing.T) {
	cases := map[error]int{
		dialer.ErrNotFound:                                  http.StatusNotFound,
		dialer.ErrLineBusy:                                  http.StatusConflict,
		fmt.Errorf("%w: timeout", dialer.ErrSignaling):      http.StatusBadGateway,
		fmt.Errorf("%w: fetch: boom", dialer.ErrDirectory):  http.StatusBadGateway,
		fmt.Errorf("%w: digit 'x'", dialer.ErrInvalidInput): http.StatusUnprocessableEntity,
		errors.New("something else"):                        http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestReport_DefaultsToLastDay(t *testing.T) {
	h, _ := newHandlers(t)
	repo := audit.NewMemoryRepo()
	_ = repo.Append(context.Background(), audit.Event{AgentID: "agent-1", Type: audit.EventTypeCallPlaced, CreatedAt: testNow.Add(-time.Hour)})
	_ = repo.Append(context.Background(), audit.Event{AgentID: "agent-1", Type: audit.EventTypeCallEnded, Message: "01:30", CreatedAt: testNow.Add(-time.Hour)})
	_ = repo.Append(context.Background(), audit.Event{AgentID: "agent-1", Type: audit.EventTypeCallPlaced, CreatedAt: testNow.Add(-48 * time.Hour)})
	h.Reports = reporting.NewService(repo)

	r := gin.New()
	r.GET("/report", h.Report)

	w := do(r, http.MethodGet, "/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out reporting.ActivitySummary
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.CallsPlaced != 1 || out.TotalTalkSeconds != 90 {
		t.Fatalf("unexpected summary %+v", out)
	}

	if w := do(r, http.MethodGet, "/report?from=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", w.Code)
	}
}
