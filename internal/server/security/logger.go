package security

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DefaultTimeout bounds a single Log call.
const DefaultTimeout = 3 * time.Second

// Sink receives every event after it has been stored.
type Sink interface {
	Publish(ctx context.Context, e *models.SecurityEvent) error
}

// Logger writes security events. Log never fails its caller: errors are
// reported to the operational log and dropped.
type Logger struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	log     logging.Logger
	sinks   []Sink
	timeout time.Duration
	now     func() time.Time
}

func NewLogger(db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger, sinks ...Sink) *Logger {
	return &Logger{
		db:      db,
		rm:      rm,
		log:     log.With("component", "security_log"),
		sinks:   sinks,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
}

// Sanitize turns a raw Event into the row that will be persisted.
func Sanitize(e Event, id string, at time.Time) *models.SecurityEvent {
	row := &models.SecurityEvent{
		ID:        id,
		EventType: string(e.Type),
		Email:     MaskEmail(e.Email),
		IPAddress: MaskIP(e.IPAddress),
		UserAgent: TruncateUserAgent(e.UserAgent),
		Details:   SanitizeDetails(e.Details),
		CreatedAt: at.UTC(),
	}
	if e.UserID != 0 {
		uid := e.UserID
		row.UserID = &uid
	}
	return row
}

// Log sanitizes and stores e, then fans it out to the sinks. It runs
// detached from ctx cancellation so a finished request cannot drop the
// event, bounded by the logger timeout.
func (l *Logger) Log(ctx context.Context, e Event) {
	if !e.Type.Valid() {
		l.log.Error(ctx, "rejected unknown security event type", "event_type", string(e.Type))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	row := Sanitize(e, uuid.NewString(), l.now())
	if err := l.rm.SecurityEvents(l.db).Insert(ctx, row); err != nil {
		l.log.Error(ctx, "failed to store security event", "event_type", row.EventType, "error", err)
		return
	}

	for _, s := range l.sinks {
		if err := s.Publish(ctx, row); err != nil {
			l.log.Warn(ctx, "security event sink failed", "event_type", row.EventType, "error", err)
		}
	}
}
