package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agent_workbench/internal/remote"
	"agent_workbench/platform/apperr"
	"agent_workbench/platform/phone"
	"agent_workbench/platform/validator"
)

type authServer struct {
	meCalls     int32
	logoutCalls int32
}

func (a *authServer) handler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login":
		_, _ = w.Write([]byte(`{"token":"tok-1","id":5,"name":"Ann","email":"ann@example.com","role":"agent"}`))
	case "/auth/me":
		atomic.AddInt32(&a.meCalls, 1)
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte(`{"id":9,"name":"Bo","email":"bo@example.com","role":"ROLE_ADMIN"}`))
	case "/auth/logout":
		atomic.AddInt32(&a.logoutCalls, 1)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestManager(t *testing.T, settings Settings) (*Manager, *authServer) {
	t.Helper()
	auth := &authServer{}
	srv := httptest.NewServer(http.HandlerFunc(auth.handler))
	t.Cleanup(srv.Close)
	client := remote.NewWithHTTPClient(srv.URL, srv.Client(), 0, time.Millisecond, nil)
	m := NewManager(client, nil, validator.New(), phone.NewNormalizer("US"), settings, nil)
	t.Cleanup(m.Close)
	return m, auth
}

func TestLoginOpensSession(t *testing.T) {
	m, _ := newTestManager(t, Settings{})

	sess, err := m.Login(context.Background(), Credentials{Email: "ann@example.com", Password: "secret", Timezone: "Europe/Amsterdam"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.AgentID != 5 || sess.Role != RoleAgent || sess.Token() != "tok-1" || sess.Location.String() != "Europe/Amsterdam" {
		t.Fatalf("unexpected session %+v", sess.Profile())
	}

	again, err := m.Resolve(context.Background(), "tok-1")
	if err != nil || again != sess {
		t.Fatalf("Resolve returned a different session: %v", err)
	}
}

func TestLoginValidatesCredentials(t *testing.T) {
	m, _ := newTestManager(t, Settings{})
	if _, err := m.Login(context.Background(), Credentials{Email: "not-an-email", Password: "x"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveOpensOneSessionForConcurrentRequests(t *testing.T) {
	m, auth := newTestManager(t, Settings{})

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := m.Resolve(context.Background(), "tok-2")
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			sessions[i] = sess
		}(i)
	}
	wg.Wait()

	for _, s := range sessions[1:] {
		if s != sessions[0] {
			t.Fatal("concurrent resolves opened different sessions")
		}
	}
	if sessions[0].Role != RoleAdmin || !sessions[0].IsAdmin() {
		t.Fatalf("expected ADMIN role, got %q", sessions[0].Role)
	}
	if n := atomic.LoadInt32(&auth.meCalls); n != 1 {
		t.Fatalf("expected one /auth/me call, got %d", n)
	}
}

func TestResolveOpenSurvivesCancelledRequest(t *testing.T) {
	m, auth := newTestManager(t, Settings{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if _, err := m.Resolve(ctx, "tok-2"); err == nil {
		t.Fatal("expected the impatient request to give up")
	}

	sess, err := m.Resolve(context.Background(), "tok-2")
	if err != nil || sess.AgentID != 9 {
		t.Fatalf("Resolve = %+v, %v", sess, err)
	}
	if n := atomic.LoadInt32(&auth.meCalls); n != 1 {
		t.Fatalf("expected the first open to be reused, got %d /auth/me calls", n)
	}
}

func TestResolveRejectsUnknownToken(t *testing.T) {
	m, _ := newTestManager(t, Settings{})
	if _, err := m.Resolve(context.Background(), "bogus"); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(m.Sessions()) != 0 {
		t.Fatal("failed resolve left a session")
	}
}

func TestLogoutEndsSession(t *testing.T) {
	m, auth := newTestManager(t, Settings{})
	sess, err := m.Login(context.Background(), Credentials{Email: "ann@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := m.Logout(context.Background(), "tok-1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := m.Get(sess.ID); ok {
		t.Fatal("session still live after logout")
	}
	if atomic.LoadInt32(&auth.logoutCalls) != 1 {
		t.Fatal("auth collaborator not told about logout")
	}
	if _, _, err := m.SessionSnapshot(context.Background(), sess.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepClosesIdleSessions(t *testing.T) {
	m, _ := newTestManager(t, Settings{IdleTTL: time.Hour})
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	if _, err := m.Login(context.Background(), Credentials{Email: "ann@example.com", Password: "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	clock = clock.Add(30 * time.Minute)
	if n := m.Sweep(); n != 0 {
		t.Fatalf("swept %d active sessions", n)
	}
	clock = clock.Add(2 * time.Hour)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected one idle session swept, got %d", n)
	}
}
