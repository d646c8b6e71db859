// internal/app/features/auditlog/auditlog.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/stratabook/internal/app/features/errors"
	"github.com/dalemusser/stratabook/internal/app/store/audit"
	"github.com/dalemusser/stratabook/internal/app/system/auth"
	"github.com/dalemusser/stratabook/internal/app/system/jsonutil"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Events is the audit storage the log view reads.
type Events interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// Users resolves the names shown next to events.
type Users interface {
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

// Handler serves the admin audit log.
type Handler struct {
	events Events
	users  Users
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

func NewHandler(events Events, users Users, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{events: events, users: users, errLog: errLog, logger: logger}
}

// Routes returns the /api/audit router (ADMIN only).
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.RoleAdmin))
	r.Get("/", h.list)
	return r
}

// Item is one audit event as returned by the API.
type Item struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Category  string            `json:"category"`
	EventType string            `json:"eventType"`
	UserID    string            `json:"userId,omitempty"`
	ActorID   string            `json:"actorId,omitempty"`
	ActorName string            `json:"actorName,omitempty"`
	IP        string            `json:"ip"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// categories lists the accepted category filters.
var categories = map[string]bool{
	audit.CategoryAuth:  true,
	audit.CategoryAdmin: true,
}

// list answers GET /api/audit?category=&event_type=&user_id=&since=&limit=.
// since is an RFC 3339 time.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		Category:  strings.TrimSpace(q.Get("category")),
		EventType: strings.TrimSpace(q.Get("event_type")),
		Limit:     defaultLimit,
	}

	fields := map[string]string{}
	if filter.Category != "" && !categories[filter.Category] {
		fields["category"] = "invalid"
	}
	if v := strings.TrimSpace(q.Get("user_id")); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			fields["user_id"] = "invalid"
		} else {
			filter.UserID = &id
		}
	}
	if v := strings.TrimSpace(q.Get("since")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fields["since"] = "invalid"
		} else {
			filter.Since = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fields["limit"] = "invalid"
		} else {
			filter.Limit = int64(min(n, maxLimit))
		}
	}
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		h.errLog.Log(r, "failed to query audit events", err)
		jsonutil.InternalError(w, "Could not load the audit log.")
		return
	}

	names := h.actorNames(r.Context(), events)
	items := make([]Item, 0, len(events))
	for _, e := range events {
		item := Item{
			ID:        e.ID.Hex(),
			Timestamp: e.CreatedAt,
			Category:  e.Category,
			EventType: e.EventType,
			IP:        e.IP,
			Success:   e.Success,
			Reason:    e.FailureReason,
			Details:   e.Details,
		}
		if e.UserID != nil {
			item.UserID = e.UserID.Hex()
		}
		// Auth events have no separate actor: the user acted on themselves.
		actor := e.ActorID
		if actor == nil && e.Category == audit.CategoryAuth {
			actor = e.UserID
		}
		if actor != nil {
			item.ActorID = actor.Hex()
			item.ActorName = names[*actor]
		}
		items = append(items, item)
	}

	jsonutil.OK(w, map[string]any{"events": items})
}

// actorNames batch-loads names for every user referenced by events.
// Deleted users simply have no name.
func (h *Handler) actorNames(ctx context.Context, events []audit.Event) map[primitive.ObjectID]string {
	seen := map[primitive.ObjectID]struct{}{}
	var ids []primitive.ObjectID
	add := func(id *primitive.ObjectID) {
		if id == nil {
			return
		}
		if _, ok := seen[*id]; !ok {
			seen[*id] = struct{}{}
			ids = append(ids, *id)
		}
	}
	for _, e := range events {
		add(e.ActorID)
		add(e.UserID)
	}

	names := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) == 0 {
		return names
	}
	users, err := h.users.GetByIDs(ctx, ids)
	if err != nil {
		h.logger.Warn("failed to fetch user names for audit log", zap.Error(err))
		return names
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names
}
