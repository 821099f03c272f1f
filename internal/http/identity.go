package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/ports"
)

// Headers set by the authenticating reverse proxy.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
	HeaderUserEmail = "X-User-Email"
)

type userKey struct{}

// HeaderIdentity trusts the proxy headers and records each user it sees.
type HeaderIdentity struct {
	users  ports.UserStore
	seen   *cache.LRUCache[struct{}]
	logger *log.Logger
}

var _ ports.Identity = (*HeaderIdentity)(nil)

func NewHeaderIdentity(users ports.UserStore, logger *log.Logger) *HeaderIdentity {
	if logger == nil {
		logger = log.Discard()
	}
	return &HeaderIdentity{
		users:  users,
		seen:   cache.NewLRUCache[struct{}](1024, 10*time.Minute),
		logger: logger.WithComponent(log.ComponentHTTP),
	}
}

// Cache exposes the upsert memo for periodic expiry.
func (h *HeaderIdentity) Cache() cache.Cleaner { return h.seen }

func (h *HeaderIdentity) CurrentUser(r *http.Request) (*core.User, bool) {
	u, ok := r.Context().Value(userKey{}).(*core.User)
	return u, ok
}

// Require rejects requests without a user ID and stores the user in the context.
// The user row is upserted at most once per cache TTL for an unchanged profile.
func (h *HeaderIdentity) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := core.User{
			ID:    sanitizeInput(r.Header.Get(HeaderUserID)),
			Name:  sanitizeInput(r.Header.Get(HeaderUserName)),
			Email: sanitizeInput(r.Header.Get(HeaderUserEmail)),
		}
		if u.ID == "" {
			writeError(w, r, errUnauthenticated)
			return
		}

		ctx := r.Context()
		key := strings.Join([]string{u.ID, u.Name, u.Email}, "\x00")
		if _, ok := h.seen.Get(key); !ok {
			if err := h.users.UpsertUser(ctx, u); err != nil {
				writeError(w, r, core.Persistence("upsert user", err))
				return
			}
			h.seen.Set(key, struct{}{})
			h.logger.DebugContext(ctx, "User recorded", log.FieldUserID, u.ID)
		}

		ctx = context.WithValue(ctx, userKey{}, &u)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// mustUser is for handlers behind Require.
func (s *Server) mustUser(r *http.Request) core.User {
	u, ok := s.identity.CurrentUser(r)
	if !ok {
		return core.User{}
	}
	return *u
}
