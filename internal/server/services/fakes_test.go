package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/dbx"
	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/mail"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/ratelimit"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/securityevents"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/users"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
	"github.com/dmitrijs2005/folioguard/internal/server/tokens"
	"golang.org/x/crypto/bcrypt"
)

var errBoom = errors.New("boom")

// --- users ---

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.User
	errs   map[string]error
	// errsOnce fail the next call of an operation only.
	errsOnce map[string]error
}

func newMemUsers() *memUsers {
	return &memUsers{rows: map[int64]*models.User{}, errs: map[string]error{}, errsOnce: map[string]error{}}
}

// fail must be called with mu held.
func (m *memUsers) fail(op string) error {
	if err := m.errsOnce[op]; err != nil {
		delete(m.errsOnce, op)
		return err
	}
	return m.errs[op]
}

func (m *memUsers) add(u models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	m.rows[u.ID] = &u
	cp := u
	return &cp
}

func (m *memUsers) get(id int64) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memUsers) find(pred func(*models.User) bool) *models.User {
	for _, u := range m.rows {
		if pred(u) {
			return u
		}
	}
	return nil
}

func (m *memUsers) update(op string, id int64, fn func(u *models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(op); err != nil {
		return err
	}
	u, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (m *memUsers) lookup(op string, pred func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(op); err != nil {
		return nil, err
	}
	u := m.find(pred)
	if u == nil {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	if err := m.fail("Create"); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	dup := m.find(func(x *models.User) bool { return strings.EqualFold(x.Email, u.Email) })
	m.mu.Unlock()
	if dup != nil {
		return nil, common.ErrorAlreadyExists
	}
	return m.add(*u), nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	return m.lookup("GetByID", func(u *models.User) bool { return u.ID == id })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return m.lookup("GetByEmail", func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memUsers) GetByEmailForUpdate(_ context.Context, email string) (*models.User, error) {
	return m.lookup("GetByEmailForUpdate", func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memUsers) GetByResetTokenForUpdate(_ context.Context, hash string) (*models.User, error) {
	return m.lookup("GetByResetTokenForUpdate", func(u *models.User) bool {
		return u.PasswordResetToken != nil && *u.PasswordResetToken == hash
	})
}

func (m *memUsers) GetLockState(_ context.Context, id int64) (*models.LockState, error) {
	u, err := m.lookup("GetLockState", func(u *models.User) bool { return u.ID == id })
	if err != nil {
		return nil, err
	}
	return &models.LockState{FailedAttempts: u.FailedLoginAttempts, LockedUntil: u.AccountLockedUntil}, nil
}

func (m *memUsers) IncrementFailedAttempts(_ context.Context, id int64, maxAttempts int, lockUntil time.Time) (*models.LockState, error) {
	var st models.LockState
	err := m.update("IncrementFailedAttempts", id, func(u *models.User) {
		u.FailedLoginAttempts++
		if u.FailedLoginAttempts >= maxAttempts {
			t := lockUntil
			u.AccountLockedUntil = &t
		}
		st = models.LockState{FailedAttempts: u.FailedLoginAttempts, LockedUntil: u.AccountLockedUntil}
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (m *memUsers) ClearExpiredLock(_ context.Context, id int64, now time.Time) (bool, error) {
	var cleared bool
	err := m.update("ClearExpiredLock", id, func(u *models.User) {
		if u.AccountLockedUntil != nil && !now.Before(*u.AccountLockedUntil) {
			u.FailedLoginAttempts, u.AccountLockedUntil, cleared = 0, nil, true
		}
	})
	return cleared, err
}

func (m *memUsers) ResetLockout(_ context.Context, id int64) error {
	return m.update("ResetLockout", id, func(u *models.User) {
		u.FailedLoginAttempts, u.AccountLockedUntil = 0, nil
	})
}

func (m *memUsers) RecordLogin(_ context.Context, id int64, at time.Time) error {
	return m.update("RecordLogin", id, func(u *models.User) {
		u.FailedLoginAttempts, u.AccountLockedUntil, u.LastLoginAt = 0, nil, &at
	})
}

func (m *memUsers) RecordPasswordChange(_ context.Context, id int64, at time.Time) error {
	return m.update("RecordPasswordChange", id, func(u *models.User) {
		u.FailedLoginAttempts, u.AccountLockedUntil, u.PasswordChangedAt = 0, nil, &at
	})
}

func (m *memUsers) SetVerificationToken(_ context.Context, id int64, hash string, expiry time.Time) error {
	return m.update("SetVerificationToken", id, func(u *models.User) {
		u.EmailVerificationToken, u.EmailVerificationExpiry = &hash, &expiry
	})
}

func (m *memUsers) ConsumeVerificationToken(_ context.Context, hash string, now time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ConsumeVerificationToken"); err != nil {
		return nil, err
	}
	u := m.find(func(u *models.User) bool {
		return u.EmailVerificationToken != nil && *u.EmailVerificationToken == hash &&
			u.EmailVerificationExpiry != nil && u.EmailVerificationExpiry.After(now)
	})
	if u == nil {
		return nil, common.ErrorNotFound
	}
	u.EmailVerified, u.EmailVerificationToken, u.EmailVerificationExpiry = true, nil, nil
	return &models.User{ID: u.ID, Email: u.Email, EmailVerified: true}, nil
}

func (m *memUsers) SetResetToken(_ context.Context, id int64, hash string, expiry time.Time) error {
	return m.update("SetResetToken", id, func(u *models.User) {
		u.PasswordResetToken, u.PasswordResetExpiry = &hash, &expiry
	})
}

func (m *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	return m.update("UpdatePassword", id, func(u *models.User) {
		u.PasswordHash, u.PasswordResetToken, u.PasswordResetExpiry = hash, nil, nil
	})
}

func (m *memUsers) Deactivate(_ context.Context, id int64, reason string, at time.Time) error {
	return m.update("Deactivate", id, func(u *models.User) {
		u.IsActive, u.DeactivatedAt, u.DeactivationReason = false, &at, &reason
	})
}

var _ users.Repository = (*memUsers)(nil)

// --- sessions ---

type memSessions struct {
	mu   sync.Mutex
	rows map[string]*models.Session
	errs map[string]error
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[string]*models.Session{}, errs: map[string]error{}}
}

func (m *memSessions) put(s models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = &s
}

func (m *memSessions) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Create"]; err != nil {
		return err
	}
	if _, ok := m.rows[s.ID]; ok {
		return errors.New("duplicate session id")
	}
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Get"]; err != nil {
		return nil, err
	}
	s, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) UpdateExpiry(_ context.Context, id string, exp time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["UpdateExpiry"]; err != nil {
		return false, err
	}
	s, ok := m.rows[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.ExpiresAt = exp
	return true, nil
}

func (m *memSessions) revokeWhere(op string, at time.Time, pred func(*models.Session) bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[op]; err != nil {
		return 0, err
	}
	var n int64
	for _, s := range m.rows {
		if s.RevokedAt == nil && pred(s) {
			t := at
			s.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func (m *memSessions) Revoke(_ context.Context, id string, at time.Time) (bool, error) {
	n, err := m.revokeWhere("Revoke", at, func(s *models.Session) bool { return s.ID == id })
	return n > 0, err
}

func (m *memSessions) RevokeForUser(_ context.Context, userID int64, id string, at time.Time) (bool, error) {
	n, err := m.revokeWhere("RevokeForUser", at, func(s *models.Session) bool { return s.ID == id && s.UserID == userID })
	return n > 0, err
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID int64, exceptID string, at time.Time) (int64, error) {
	return m.revokeWhere("RevokeAllForUser", at, func(s *models.Session) bool {
		return s.UserID == userID && s.ExpiresAt.After(at) && s.ID != exceptID
	})
}

func (m *memSessions) active(now time.Time) []models.Session {
	var out []models.Session
	for _, s := range m.rows {
		if s.IsActive(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memSessions) ListActive(_ context.Context, userID int64, now time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["ListActive"]; err != nil {
		return nil, err
	}
	var out []models.Session
	for _, s := range m.active(now) {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["DeleteExpired"]; err != nil {
		return 0, err
	}
	var n int64
	for id, s := range m.rows {
		if !s.ExpiresAt.After(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) Stats(_ context.Context, now time.Time) (*models.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Stats"]; err != nil {
		return nil, err
	}
	st := &models.SessionStats{}
	usersSeen := map[int64]bool{}
	var total float64
	for _, s := range m.active(now) {
		st.TotalActiveSessions++
		usersSeen[s.UserID] = true
		if s.IsRememberMe {
			st.RememberMeSessions++
		}
		if !s.ExpiresAt.After(now.Add(24 * time.Hour)) {
			st.ExpiringWithin24h++
		}
		total += s.ExpiresAt.Sub(s.CreatedAt).Seconds()
	}
	st.ActiveUsers = int64(len(usersSeen))
	if st.TotalActiveSessions > 0 {
		st.AverageDurationSeconds = total / float64(st.TotalActiveSessions)
	}
	return st, nil
}

func (m *memSessions) Footprints(_ context.Context, now time.Time, maxSessions, maxIPs, maxAgents int) ([]models.SessionFootprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["Footprints"]; err != nil {
		return nil, err
	}
	type agg struct {
		n        int
		ips, uas map[string]bool
	}
	per := map[int64]*agg{}
	for _, s := range m.active(now) {
		a := per[s.UserID]
		if a == nil {
			a = &agg{ips: map[string]bool{}, uas: map[string]bool{}}
			per[s.UserID] = a
		}
		a.n++
		a.ips[s.IPAddress] = true
		a.uas[s.UserAgent] = true
	}
	var out []models.SessionFootprint
	for uid, a := range per {
		if a.n > maxSessions || len(a.ips) > maxIPs || len(a.uas) > maxAgents {
			out = append(out, models.SessionFootprint{UserID: uid, ActiveSessions: a.n, DistinctIPs: len(a.ips), DistinctUserAgents: len(a.uas)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

var _ sessions.Repository = (*memSessions)(nil)

// --- security event store ---

type memEventStore struct {
	rows []models.SecurityEvent
	err  error
}

func (m *memEventStore) Insert(_ context.Context, e *models.SecurityEvent) error {
	m.rows = append(m.rows, *e)
	return nil
}

func (m *memEventStore) ListBetween(_ context.Context, from, to time.Time) ([]models.SecurityEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.SecurityEvent
	for _, e := range m.rows {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEventStore) ListRecent(context.Context, string, int) ([]models.SecurityEvent, error) {
	return nil, nil
}

var _ securityevents.Repository = (*memEventStore)(nil)

type memRepoManager struct {
	users    *memUsers
	sessions *memSessions
	events   *memEventStore
	// usersRepo replaces users when set.
	usersRepo users.Repository
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *memRepoManager) Users(dbx.DBTX) users.Repository {
	if m.usersRepo != nil {
		return m.usersRepo
	}
	return m.users
}

func (m *memRepoManager) Sessions(dbx.DBTX) sessions.Repository             { return m.sessions }
func (m *memRepoManager) SecurityEvents(dbx.DBTX) securityevents.Repository { return m.events }

// --- row locks ---

// callerKey tags the context of one caller so a transaction and the row
// locks taken inside it can be matched up.
type callerKey struct{}

// rowLocks emulates SELECT ... FOR UPDATE: a row lock taken inside a
// transaction is held until that transaction commits or rolls back.
type rowLocks struct {
	mu   sync.Mutex
	rows map[string]chan struct{}
	held map[any][]string
}

func newRowLocks() *rowLocks {
	return &rowLocks{rows: map[string]chan struct{}{}, held: map[any][]string{}}
}

func (l *rowLocks) row(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.rows[key]
	if !ok {
		c = make(chan struct{}, 1)
		l.rows[key] = c
	}
	return c
}

func (l *rowLocks) lock(ctx context.Context, key string) error {
	select {
	case l.row(key) <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	owner := ctx.Value(callerKey{})
	l.mu.Lock()
	l.held[owner] = append(l.held[owner], key)
	l.mu.Unlock()
	return nil
}

func (l *rowLocks) release(owner any) {
	l.mu.Lock()
	keys := l.held[owner]
	delete(l.held, owner)
	l.mu.Unlock()
	for _, k := range keys {
		<-l.row(k)
	}
}

// lockingConnector is a database/sql driver that supports nothing but
// transactions; ending one releases the row locks of its caller.
type lockingConnector struct{ locks *rowLocks }

func (c lockingConnector) Connect(context.Context) (driver.Conn, error) {
	return &lockingConn{locks: c.locks}, nil
}

func (c lockingConnector) Driver() driver.Driver { return lockingDriver{} }

type lockingDriver struct{}

func (lockingDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("locking driver: use the connector")
}

type lockingConn struct{ locks *rowLocks }

func (c *lockingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("locking driver: statements are not supported")
}

func (c *lockingConn) Close() error { return nil }

func (c *lockingConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *lockingConn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	return lockingTx{locks: c.locks, owner: ctx.Value(callerKey{})}, nil
}

type lockingTx struct {
	locks *rowLocks
	owner any
}

func (t lockingTx) Commit() error   { t.locks.release(t.owner); return nil }
func (t lockingTx) Rollback() error { t.locks.release(t.owner); return nil }

// lockingUsers takes the row lock of an account in GetByEmailForUpdate.
type lockingUsers struct {
	*memUsers
	locks *rowLocks
}

func (u lockingUsers) GetByEmailForUpdate(ctx context.Context, email string) (*models.User, error) {
	if err := u.locks.lock(ctx, strings.ToLower(email)); err != nil {
		return nil, err
	}
	return u.memUsers.GetByEmailForUpdate(ctx, email)
}

// --- collaborators ---

type recordedEvents struct {
	mu  sync.Mutex
	got []security.Event
}

func (r *recordedEvents) Log(_ context.Context, e security.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
}

func (r *recordedEvents) of(t security.EventType) []security.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []security.Event
	for _, e := range r.got {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeLimiter struct {
	mu    sync.Mutex
	deny  map[ratelimit.Bucket]bool
	err   error
	calls []string
}

func (l *fakeLimiter) Allow(_ context.Context, b ratelimit.Bucket, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, string(b)+":"+key)
	if l.err != nil {
		return false, l.err
	}
	return !l.deny[b], nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var tokenInLink = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// lastToken extracts the raw token from the last mail sent.
func (m *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	if len(m.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	got := tokenInLink.FindStringSubmatch(m.sent[len(m.sent)-1].Text)
	if got == nil {
		t.Fatalf("no token in mail: %q", m.sent[len(m.sent)-1].Text)
	}
	return got[1]
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// --- environment ---

type testEnv struct {
	db   *sql.DB
	mock sqlmock.Sqlmock

	users    *memUsers
	sessions *memSessions
	store    *memEventStore
	events   *recordedEvents
	limiter  *fakeLimiter
	mailer   *fakeMailer
	clock    *fakeClock
	cfg      *config.Config

	renderer *mail.Renderer

	lockout    *LockoutService
	sessionSvc *SessionService
	flows      *TokenFlowService
	auth       *AuthService
	monitoring *MonitoringService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = bcrypt.MinCost

	renderer, err := mail.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer error: %v", err)
	}

	e := &testEnv{
		db:       db,
		mock:     mock,
		users:    newMemUsers(),
		sessions: newMemSessions(),
		store:    &memEventStore{},
		events:   &recordedEvents{},
		limiter:  &fakeLimiter{deny: map[ratelimit.Bucket]bool{}},
		mailer:   &fakeMailer{},
		clock:    &fakeClock{t: time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)},
		cfg:      cfg,
		renderer: renderer,
	}
	rm := &memRepoManager{users: e.users, sessions: e.sessions, events: e.store}
	log := logging.Nop()

	e.lockout = NewLockoutService(db, rm, e.events, log, cfg)
	e.lockout.now = e.clock.now
	e.sessionSvc = NewSessionService(db, rm, e.events, log, cfg)
	e.sessionSvc.now = e.clock.now
	e.flows = NewTokenFlowService(db, rm, e.events, log, e.limiter, e.mailer, renderer, e.lockout, cfg)
	e.flows.now = e.clock.now
	e.auth = NewAuthService(db, rm, e.events, log, e.limiter, e.lockout, e.sessionSvc, e.flows, cfg)
	e.auth.now = e.clock.now
	e.monitoring = NewMonitoringService(db, rm, e.events, log, e.sessionSvc, cfg)
	e.monitoring.now = e.clock.now
	return e
}

// rowLockedFlows returns a TokenFlowService whose transactions run on a
// driver that honours row locks taken by GetByEmailForUpdate. Callers must
// tag their context with callerKey.
func (e *testEnv) rowLockedFlows(t *testing.T) *TokenFlowService {
	t.Helper()
	locks := newRowLocks()
	db := sql.OpenDB(lockingConnector{locks: locks})
	t.Cleanup(func() { _ = db.Close() })

	rm := &memRepoManager{
		users:     e.users,
		sessions:  e.sessions,
		events:    e.store,
		usersRepo: lockingUsers{memUsers: e.users, locks: locks},
	}
	flows := NewTokenFlowService(db, rm, e.events, logging.Nop(), e.limiter, e.mailer, e.renderer, e.lockout, e.cfg)
	flows.now = e.clock.now
	return flows
}

// addUser stores an active account with the given password.
func (e *testEnv) addUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	h, err := tokens.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	return e.users.add(models.User{Email: email, Name: "Jane", PasswordHash: h, IsActive: true})
}

func (e *testEnv) expectTx(commit bool) {
	e.mock.ExpectBegin()
	if commit {
		e.mock.ExpectCommit()
	} else {
		e.mock.ExpectRollback()
	}
}

func (e *testEnv) verifyTx(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
