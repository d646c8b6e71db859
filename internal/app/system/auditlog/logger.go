// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratabook/internal/app/store/audit"
	"github.com/dalemusser/stratabook/internal/app/system/network"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (sign-in, magic links, logout).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Admin controls logging for account changes (invitations, email changes, deletions).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Eventer is the store dependency of Logger.
type Eventer interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger provides convenience methods for logging audit events.
// It logs to MongoDB (via the store) and to structured logs (via zap).
type Logger struct {
	store  Eventer
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store Eventer, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// requestID returns chi's request id, or a fresh UUID when the request did
// not pass through the RequestID middleware.
func requestID(r *http.Request) string {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

func fromRequest(r *http.Request, e audit.Event) audit.Event {
	e.RequestID = requestID(r)
	e.IP = network.GetClientIP(r)
	e.UserAgent = r.UserAgent()
	return e
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}
	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}
	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

// SignIn logs the outcome of an identity reconciliation. outcome is one of
// "allow", "deny" or "redirect"; reason is the decision's reason code.
func (l *Logger) SignIn(ctx context.Context, r *http.Request, userID *primitive.ObjectID, provider, email, outcome, reason string) {
	eventType := audit.EventSignInAllowed
	switch outcome {
	case "deny":
		eventType = audit.EventSignInDenied
	case "redirect":
		eventType = audit.EventSignInRedirected
	}
	e := audit.Event{
		Category:  audit.CategoryAuth,
		EventType: eventType,
		UserID:    userID,
		Success:   outcome == "allow",
		Details: map[string]string{
			"provider": provider,
			"email":    email,
		},
	}
	if outcome != "allow" {
		e.FailureReason = reason
	}
	l.Log(ctx, fromRequest(r, e))
}

// MagicLinkSent logs when a sign-in link is emailed.
func (l *Logger) MagicLinkSent(ctx context.Context, r *http.Request, email string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventMagicLinkSent,
		Success:   true,
		Details:   map[string]string{"email": email},
	}))
}

// MagicLinkUsed logs when a magic link is used for sign-in.
func (l *Logger) MagicLinkUsed(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventMagicLinkUsed,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email},
	}))
}

// MagicLinkFailed logs a rejected magic link.
func (l *Logger) MagicLinkFailed(ctx context.Context, r *http.Request, reason string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventMagicLinkFailed,
		Success:       false,
		FailureReason: reason,
	}))
}

// Logout logs a user logout.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userIDStr string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    parseID(userIDStr),
		Success:   true,
	}))
}

// ImpersonationStarted logs an admin acting as another user.
func (l *Logger) ImpersonationStarted(ctx context.Context, r *http.Request, actorIDStr, targetIDStr string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventImpersonationStarted,
		UserID:    parseID(targetIDStr),
		ActorID:   parseID(actorIDStr),
		Success:   true,
	}))
}

// ImpersonationStopped logs the end of an impersonation.
func (l *Logger) ImpersonationStopped(ctx context.Context, r *http.Request, actorIDStr, targetIDStr string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventImpersonationStopped,
		UserID:    parseID(targetIDStr),
		ActorID:   parseID(actorIDStr),
		Success:   true,
	}))
}

// --- Account Events ---

// UserInvited logs when an admin invites a user.
func (l *Logger) UserInvited(ctx context.Context, r *http.Request, actorIDStr string, targetUserID primitive.ObjectID, role string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventUserInvited,
		UserID:    &targetUserID,
		ActorID:   parseID(actorIDStr),
		Success:   true,
		Details:   map[string]string{"role": role},
	}))
}

// EmailChanged logs an email change. It is recorded both for provider-driven
// changes during sign-in and for profile edits.
func (l *Logger) EmailChanged(ctx context.Context, r *http.Request, userID primitive.ObjectID, oldEmail, newEmail string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventEmailChanged,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"old_email": oldEmail, "new_email": newEmail},
	}))
}

// ProfileUpdated logs a profile edit with the list of changed fields.
func (l *Logger) ProfileUpdated(ctx context.Context, r *http.Request, userIDStr, fieldsChanged string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventProfileUpdated,
		UserID:    parseID(userIDStr),
		Success:   true,
		Details:   map[string]string{"fields_changed": fieldsChanged},
	}))
}

// AccountDeleted logs a user deleting their own account.
func (l *Logger) AccountDeleted(ctx context.Context, r *http.Request, userIDStr, role string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventAccountDeleted,
		UserID:    parseID(userIDStr),
		Success:   true,
		Details:   map[string]string{"role": role},
	}))
}

func parseID(s string) *primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return nil
	}
	return &oid
}
