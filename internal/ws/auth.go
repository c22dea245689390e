package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"taskstream/pkg/interfaces"
	"taskstream/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// Roles in priority order, highest wins when a user holds several.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
	RoleGuest  = "guest"
)

var rolePriority = map[string]int{
	RoleAdmin:  4,
	RoleEditor: 3,
	RoleViewer: 2,
	RoleGuest:  1,
}

// HighestRole returns the highest-priority role from a set, guest when
// the set is empty or holds only unknown names.
func HighestRole(roles []string) string {
	best := RoleGuest
	bestPriority := 0
	for _, role := range roles {
		if p := rolePriority[role]; p > bestPriority {
			best = role
			bestPriority = p
		}
	}
	return best
}

// AuthContext per-connection authentication state. Owned by exactly
// one connection, the mutex covers heartbeat updates from the read
// loop racing the monitor and token swaps racing expiry checks.
type AuthContext struct {
	mu sync.Mutex

	userID          string
	role            string
	token           string
	tokenExp        time.Time
	isAuthenticated bool

	connectionTime time.Time
	lastHeartbeat  time.Time

	Metadata map[string]interface{}
}

// NewAnonymousContext returns a guest context for unauthenticated
// connections.
func NewAnonymousContext() *AuthContext {
	now := time.Now().UTC()
	return &AuthContext{
		userID:         "anonymous",
		role:           RoleGuest,
		connectionTime: now,
		lastHeartbeat:  now,
		Metadata:       map[string]interface{}{},
	}
}

// UserID returns the authenticated user id, "anonymous" otherwise.
func (c *AuthContext) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Role returns the resolved role.
func (c *AuthContext) Role() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// IsAuthenticated reports whether a valid credential was presented.
func (c *AuthContext) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAuthenticated
}

// Touch records a heartbeat.
func (c *AuthContext) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHeartbeat = time.Now().UTC()
}

// LastHeartbeat returns the time of the most recent heartbeat.
func (c *AuthContext) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

// TimeToExpiry returns the remaining credential lifetime, zero
// duration and false when no expiring credential is held.
func (c *AuthContext) TimeToExpiry() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isAuthenticated || c.tokenExp.IsZero() {
		return 0, false
	}
	return time.Until(c.tokenExp), true
}

// TokenExp returns the credential expiry time.
func (c *AuthContext) TokenExp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenExp
}

// swapToken atomically installs a refreshed credential.
func (c *AuthContext) swapToken(token, userID string, exp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.userID = userID
	c.tokenExp = exp
	c.isAuthenticated = true
}

// Authenticator validates bearer credentials at handshake time.
type Authenticator struct {
	secret      []byte
	roles       interfaces.RoleProvider
	requireAuth bool
}

// NewAuthenticator creates an authenticator. roles may be nil, role
// resolution then always yields guest.
func NewAuthenticator(secret string, roles interfaces.RoleProvider, requireAuth bool) *Authenticator {
	return &Authenticator{
		secret:      []byte(secret),
		roles:       roles,
		requireAuth: requireAuth,
	}
}

// ExtractToken pulls the bearer credential from the handshake request,
// in priority order: the token query parameter, the authorization
// query parameter in Bearer form, a Bearer.<token> subprotocol.
func ExtractToken(r *http.Request) string {
	q := r.URL.Query()
	if token := q.Get("token"); token != "" {
		return token
	}
	if auth := q.Get("authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, proto := range strings.Split(header, ",") {
			proto = strings.TrimSpace(proto)
			if strings.HasPrefix(proto, "Bearer.") {
				return strings.TrimPrefix(proto, "Bearer.")
			}
		}
	}
	return ""
}

// ErrAuthRequired is returned when authentication is mandatory and the
// credential is missing or invalid. The caller closes the socket with
// a policy-violation code.
type ErrAuthRequired struct {
	Reason string
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("authentication required: %s", e.Reason)
}

// Authenticate validates the handshake credential and resolves the
// user's role. An invalid or missing credential downgrades to an
// anonymous context unless authentication is required.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthContext, error) {
	token := ExtractToken(r)
	if token == "" {
		if a.requireAuth {
			return nil, &ErrAuthRequired{Reason: "missing token"}
		}
		logger.Debugf("websocket anonymous connection from %s", r.RemoteAddr)
		return NewAnonymousContext(), nil
	}

	userID, exp, err := a.validateToken(token)
	if err != nil {
		logger.Warnf("websocket token rejected: %v", err)
		if a.requireAuth {
			return nil, &ErrAuthRequired{Reason: "invalid token"}
		}
		return NewAnonymousContext(), nil
	}

	authCtx := NewAnonymousContext()
	authCtx.swapToken(token, userID, exp)
	authCtx.mu.Lock()
	authCtx.role = a.resolveRole(ctx, userID)
	authCtx.mu.Unlock()

	logger.Infof("websocket authenticated, user=%s role=%s", userID, authCtx.Role())
	return authCtx, nil
}

// validateToken parses and verifies an HS256 JWT, returning the
// subject and expiry.
func (a *Authenticator) validateToken(token string) (string, time.Time, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", time.Time{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, fmt.Errorf("unexpected claims type")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", time.Time{}, fmt.Errorf("token has no subject")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "", time.Time{}, fmt.Errorf("token has no expiry")
	}
	return subject, exp.Time, nil
}

// resolveRole looks the user's highest-priority role up through the
// RBAC collaborator. Failures never block the connection, they fall
// back to guest.
func (a *Authenticator) resolveRole(ctx context.Context, userID string) string {
	if a.roles == nil {
		return RoleGuest
	}
	roles, err := a.roles.GetUserRoles(ctx, userID)
	if err != nil {
		logger.Warnf("role lookup failed for user %s: %v", userID, err)
		return RoleGuest
	}
	return HighestRole(roles)
}
