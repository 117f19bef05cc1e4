package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
	"github.com/dmitrijs2005/folioguard/internal/server/services"
)

const (
	goodCSRF   = "csrf-ok"
	userRaw    = "raw-user-session"
	adminRaw   = "raw-admin-session"
	regularUID = int64(7)
	adminUID   = int64(1)
)

type fakeAuth struct {
	users map[int64]*models.User

	loginRes *services.AuthResult
	loginErr error
	regRes   *services.AuthResult
	regErr   error

	logouts     []int64
	changeErr   error
	changeCalls []string
	deactivated map[int64]string
}

func (f *fakeAuth) Register(_ context.Context, _, _, _ string, _ services.RequestMeta) (*services.AuthResult, error) {
	return f.regRes, f.regErr
}

func (f *fakeAuth) Login(_ context.Context, _, _ string, _ bool, _ services.RequestMeta) (*services.AuthResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeAuth) Logout(_ context.Context, userID int64, _ string, _ services.RequestMeta) error {
	f.logouts = append(f.logouts, userID)
	return nil
}

func (f *fakeAuth) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeAuth) ChangePassword(_ context.Context, _ int64, currentRaw, _, _ string, _ services.RequestMeta) error {
	f.changeCalls = append(f.changeCalls, currentRaw)
	return f.changeErr
}

func (f *fakeAuth) Deactivate(_ context.Context, userID int64, reason string, _ services.RequestMeta) error {
	if f.deactivated == nil {
		f.deactivated = map[int64]string{}
	}
	f.deactivated[userID] = reason
	return nil
}

type revokeAllCall struct {
	userID int64
	except string
	reason string
}

type fakeSessions struct {
	valid     map[string]services.SessionValidation
	list      []services.ActiveSession
	revokeErr error
	revoked   []string
	revokeAll []revokeAllCall
}

func (f *fakeSessions) ValidateSession(_ context.Context, raw string) services.SessionValidation {
	return f.valid[raw]
}

func (f *fakeSessions) RevokeSessionForUser(_ context.Context, _ int64, handle string) error {
	f.revoked = append(f.revoked, handle)
	return f.revokeErr
}

func (f *fakeSessions) RevokeAllSessionsForUser(_ context.Context, userID int64, except, reason string) (int64, error) {
	f.revokeAll = append(f.revokeAll, revokeAllCall{userID, except, reason})
	return 3, nil
}

func (f *fakeSessions) ListActiveSessions(_ context.Context, _ int64, _ string) ([]services.ActiveSession, error) {
	return f.list, nil
}

type fakeTokens struct {
	resetErr    error
	verifyPanic bool
	forgot      []string
	resent      []int64
}

func (f *fakeTokens) SendVerificationEmail(_ context.Context, userID int64) error {
	f.resent = append(f.resent, userID)
	return nil
}

func (f *fakeTokens) VerifyEmail(_ context.Context, _ string, _ services.RequestMeta) (int64, error) {
	if f.verifyPanic {
		panic("boom")
	}
	return regularUID, nil
}

func (f *fakeTokens) SendPasswordReset(_ context.Context, email string, _ services.RequestMeta) error {
	f.forgot = append(f.forgot, email)
	return nil
}

func (f *fakeTokens) ResetPassword(_ context.Context, _, _ string, _ services.RequestMeta) error {
	return f.resetErr
}

type fakeMonitor struct {
	stats    *models.SessionStats
	statsErr error
	health   services.HealthReport
	report   *services.MaintenanceReport
	runErr   error
}

func (f *fakeMonitor) SessionStats(context.Context) (*models.SessionStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeMonitor) HealthCheck(context.Context) services.HealthReport { return f.health }

func (f *fakeMonitor) RunMaintenance(context.Context) (*services.MaintenanceReport, error) {
	return f.report, f.runErr
}

type fakeLockout struct {
	unlocked [][2]int64
}

func (f *fakeLockout) UnlockAccount(_ context.Context, userID, actorID int64) error {
	f.unlocked = append(f.unlocked, [2]int64{userID, actorID})
	return nil
}

type fakeCSRF struct{}

func (fakeCSRF) Generate() (string, error) { return goodCSRF, nil }
func (fakeCSRF) Verify(t string) bool      { return t == goodCSRF }

type recordedEvents struct {
	mu     sync.Mutex
	events []security.Event
}

func (r *recordedEvents) Log(_ context.Context, e security.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordedEvents) of(t security.EventType) []security.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []security.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeMetrics struct {
	mu     sync.Mutex
	routes []string
}

func (m *fakeMetrics) ObserveHTTP(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, method+" "+route)
}

func (m *fakeMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
}

type testEnv struct {
	router   http.Handler
	auth     *fakeAuth
	sessions *fakeSessions
	tokens   *fakeTokens
	monitor  *fakeMonitor
	lockout  *fakeLockout
	events   *recordedEvents
	metrics  *fakeMetrics
	expiry   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	expiry := time.Now().Add(8 * time.Hour).Truncate(time.Second)
	e := &testEnv{
		auth: &fakeAuth{users: map[int64]*models.User{
			regularUID: {ID: regularUID, Email: "ann@example.com", Name: "Ann", IsActive: true},
			adminUID:   {ID: adminUID, Email: "root@example.com", Name: "Root", IsActive: true, IsAdmin: true},
		}},
		sessions: &fakeSessions{valid: map[string]services.SessionValidation{
			userRaw:  {Valid: true, UserID: regularUID, Session: &models.Session{ID: "h-user", UserID: regularUID, ExpiresAt: expiry}},
			adminRaw: {Valid: true, UserID: adminUID, Session: &models.Session{ID: "h-admin", UserID: adminUID, ExpiresAt: expiry}},
		}},
		tokens:  &fakeTokens{},
		monitor: &fakeMonitor{},
		lockout: &fakeLockout{},
		events:  &recordedEvents{},
		metrics: &fakeMetrics{},
		expiry:  expiry,
	}
	h := NewHandler(Deps{
		Auth:          e.auth,
		Sessions:      e.sessions,
		Tokens:        e.tokens,
		Monitor:       e.monitor,
		Lockout:       e.lockout,
		CSRF:          fakeCSRF{},
		Events:        e.events,
		Metrics:       e.metrics,
		SecureCookies: true,
	})
	e.router = NewRouter(h)
	return e
}

type reqOpt func(*http.Request)

func withCSRF(r *http.Request) { r.Header.Set(common.CSRFHeaderName, goodCSRF) }

func withSession(raw string) reqOpt {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: common.SessionCookieName, Value: raw})
	}
}

func (e *testEnv) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "test-agent")
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookieOf(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == common.SessionCookieName {
			return c
		}
	}
	return nil
}
