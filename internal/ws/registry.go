package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"taskstream/pkg/constants"
	"taskstream/pkg/logger"
	"taskstream/pkg/metrics"
)

// Connection one registered WebSocket connection with its resource
// subscriptions.
type Connection struct {
	ID   string
	sock Conn

	SessionID  string
	UserID     string
	DocumentID string
	QueryID    string
	SourceID   string
	ProjectID  string

	Type        string
	ConnectedAt time.Time
}

// ConnectParams subscription parameters supplied at handshake time.
type ConnectParams struct {
	SessionID  string
	UserID     string
	DocumentID string
	QueryID    string
	SourceID   string
	ProjectID  string
	Type       string
}

// Stats point-in-time registry statistics.
type Stats struct {
	ActiveConnections int       `json:"active_connections"`
	ActiveSessions    int       `json:"active_sessions"`
	ConnectedUsers    int       `json:"connected_users"`
	Timestamp         time.Time `json:"timestamp"`
}

// Registry is the authoritative table of live connections. One mutex
// guards the primary table and every secondary index so that
// interleaved connect/disconnect cannot leave the indexes
// inconsistent. Socket sends happen outside the lock.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection

	sessions  map[string]map[string]struct{}
	users     map[string]map[string]struct{}
	documents map[string]map[string]struct{}
	queries   map[string]map[string]struct{}
	sources   map[string]map[string]struct{}
	projects  map[string]map[string]struct{}

	m *metrics.Metrics
}

// NewRegistry creates an empty connection registry.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		conns:     make(map[string]*Connection),
		sessions:  make(map[string]map[string]struct{}),
		users:     make(map[string]map[string]struct{}),
		documents: make(map[string]map[string]struct{}),
		queries:   make(map[string]map[string]struct{}),
		sources:   make(map[string]map[string]struct{}),
		projects:  make(map[string]map[string]struct{}),
		m:         m,
	}
}

func addIndex(index map[string]map[string]struct{}, key, connID string) {
	if key == "" {
		return
	}
	if index[key] == nil {
		index[key] = make(map[string]struct{})
	}
	index[key][connID] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, key, connID string) {
	if key == "" {
		return
	}
	if set, ok := index[key]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

// Connect registers a connection under the primary table and every
// applicable secondary index, then confirms the connection on the
// socket. A failed confirmation rolls the registration back.
func (r *Registry) Connect(sock Conn, connID string, params ConnectParams) error {
	conn := &Connection{
		ID:          connID,
		sock:        sock,
		SessionID:   params.SessionID,
		UserID:      params.UserID,
		DocumentID:  params.DocumentID,
		QueryID:     params.QueryID,
		SourceID:    params.SourceID,
		ProjectID:   params.ProjectID,
		Type:        params.Type,
		ConnectedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	if _, exists := r.conns[connID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("connection %s already registered", connID)
	}
	r.conns[connID] = conn
	addIndex(r.sessions, conn.SessionID, connID)
	addIndex(r.users, conn.UserID, connID)
	addIndex(r.documents, conn.DocumentID, connID)
	addIndex(r.queries, conn.QueryID, connID)
	addIndex(r.sources, conn.SourceID, connID)
	addIndex(r.projects, conn.ProjectID, connID)
	total := len(r.conns)
	r.mu.Unlock()

	if r.m != nil {
		r.m.ActiveConnections.Set(float64(total))
	}

	confirmation, _ := json.Marshal(map[string]interface{}{
		"type":          constants.MessageTypeConnection,
		"status":        "connected",
		"connection_id": connID,
		"timestamp":     conn.ConnectedAt.Format(time.RFC3339),
	})
	if err := sock.SendText(confirmation); err != nil {
		r.Disconnect(connID)
		return fmt.Errorf("failed to confirm connection %s: %w", connID, err)
	}

	logger.Infof("websocket connected, connection_id=%s type=%s user=%s", connID, conn.Type, conn.UserID)
	return nil
}

// Disconnect removes a connection from the primary table and every
// secondary index. Idempotent, unknown ids are a no-op.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	removeIndex(r.sessions, conn.SessionID, connID)
	removeIndex(r.users, conn.UserID, connID)
	removeIndex(r.documents, conn.DocumentID, connID)
	removeIndex(r.queries, conn.QueryID, connID)
	removeIndex(r.sources, conn.SourceID, connID)
	removeIndex(r.projects, conn.ProjectID, connID)
	total := len(r.conns)
	r.mu.Unlock()

	if r.m != nil {
		r.m.ActiveConnections.Set(float64(total))
	}
	logger.Infof("websocket disconnected, connection_id=%s", connID)
}

// SendPersonal delivers a message to one connection. A failed send
// removes the connection from the registry entirely so a dead socket
// can never stay subscribed.
func (r *Registry) SendPersonal(data []byte, connID string) error {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	r.mu.Unlock()

	if !ok {
		logger.Debugf("send to unknown connection %s, no subscribers", connID)
		return nil
	}

	if err := conn.sock.SendText(data); err != nil {
		if r.m != nil {
			r.m.SendFailures.Inc()
		}
		logger.Warnf("send failed for connection %s, cleaning up: %v", connID, err)
		r.Disconnect(connID)
		return err
	}
	if r.m != nil {
		r.m.MessagesSent.WithLabelValues("personal").Inc()
	}
	return nil
}

// snapshotIndex copies the connection id set for one index key so
// sends can run outside the lock.
func (r *Registry) snapshotIndex(index map[string]map[string]struct{}, key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := index[key]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) sendToIndex(index map[string]map[string]struct{}, key string, data []byte, targetType string) {
	ids := r.snapshotIndex(index, key)
	if len(ids) == 0 {
		logger.Debugf("no subscribers for %s %s", targetType, key)
		if r.m != nil {
			r.m.NoSubscriberSends.WithLabelValues(targetType).Inc()
		}
		return
	}
	for _, id := range ids {
		_ = r.SendPersonal(data, id)
	}
	if r.m != nil {
		r.m.MessagesSent.WithLabelValues(targetType).Add(float64(len(ids)))
	}
}

// SendToSession fans out to every connection in one session.
func (r *Registry) SendToSession(data []byte, sessionID string) {
	r.sendToIndex(r.sessions, sessionID, data, constants.TargetSession)
}

// SendToUser fans out to every connection of one user.
func (r *Registry) SendToUser(data []byte, userID string) {
	r.sendToIndex(r.users, userID, data, constants.TargetUser)
}

// SendToDocument fans out to every connection watching one document.
func (r *Registry) SendToDocument(data []byte, documentID string) {
	r.sendToIndex(r.documents, documentID, data, constants.TargetDocument)
}

// SendToQuery fans out to every connection watching one query.
func (r *Registry) SendToQuery(data []byte, queryID string) {
	r.sendToIndex(r.queries, queryID, data, constants.TargetQuery)
}

// SendToSource fans out to every connection watching one source.
func (r *Registry) SendToSource(data []byte, sourceID string) {
	r.sendToIndex(r.sources, sourceID, data, constants.TargetSource)
}

// SendToProjectSources fans out to every connection watching sources
// of one project.
func (r *Registry) SendToProjectSources(data []byte, projectID string) {
	r.sendToIndex(r.projects, projectID, data, constants.TargetProjectSources)
}

// Broadcast sends to every live connection except the excluded ids.
func (r *Registry) Broadcast(data []byte, exclude map[string]struct{}) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		if _, skip := exclude[id]; skip {
			continue
		}
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.SendPersonal(data, id)
	}
	if r.m != nil && len(ids) > 0 {
		r.m.MessagesSent.WithLabelValues(constants.TargetBroadcast).Add(float64(len(ids)))
	}
}

// Get returns the registered connection for an id, nil when unknown.
func (r *Registry) Get(connID string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[connID]
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// GetStats returns point-in-time statistics.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		ActiveConnections: len(r.conns),
		ActiveSessions:    len(r.sessions),
		ConnectedUsers:    len(r.users),
		Timestamp:         time.Now().UTC(),
	}
}

// indexesConsistent verifies no secondary index references a
// connection id missing from the primary table. Exposed for tests.
func (r *Registry) indexesConsistent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, index := range []map[string]map[string]struct{}{
		r.sessions, r.users, r.documents, r.queries, r.sources, r.projects,
	} {
		for _, set := range index {
			for id := range set {
				if _, ok := r.conns[id]; !ok {
					return false
				}
			}
		}
	}
	return true
}
