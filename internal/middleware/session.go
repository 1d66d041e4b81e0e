package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/portal-api/internal/model"
)

const (
	HeaderSessionID   = "X-Session-ID"
	SessionCookieName = "portal_session"
	ContextSession    = "session"
)

// SessionResolver looks a session up by id. Unknown ids resolve to an empty
// session.
type SessionResolver interface {
	Resolve(ctx context.Context, id string) model.Session
}

// Session puts the caller's session into the gin context. It never rejects a
// request; handlers decide what an empty session means.
func Session(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := SessionID(c)
		c.Set(ContextSession, resolver.Resolve(c.Request.Context(), id))
		c.Next()
	}
}

// SessionID reads the session id from the header, falling back to the cookie.
func SessionID(c *gin.Context) string {
	if id := c.GetHeader(HeaderSessionID); id != "" {
		return id
	}
	id, _ := c.Cookie(SessionCookieName)
	return id
}

// CurrentSession returns the session stored by Session, or an empty one.
func CurrentSession(c *gin.Context) model.Session {
	if v, ok := c.Get(ContextSession); ok {
		if s, ok := v.(model.Session); ok {
			return s
		}
	}
	return model.Session{}
}
