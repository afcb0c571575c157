package domain

import (
	"regexp"
	"time"
)

// Status is the connection status of a session
type Status string

// Session connection statuses. StatusLoggedOut is terminal for a handle
// instance. StatusDeleted only ever appears in the catalog.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusLoggedOut    Status = "logged_out"
	StatusDeleted      Status = "deleted"
)

var sessionIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidSessionID tells whether id is an acceptable session identifier
func ValidSessionID(id string) bool {
	return sessionIDRegexp.MatchString(id)
}

// Webhook is one webhook subscription: a target url plus the event names it
// subscribes to
type Webhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// SessionOptions are the caller supplied settings for a session. Nil maps and
// slices mean "leave as is" on merge.
type SessionOptions struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Webhooks []Webhook      `json:"webhooks,omitempty"`
}

// SessionRecord is the persistent state of one session
type SessionRecord struct {
	ID         string
	Status     Status
	Metadata   map[string]any
	Webhooks   []Webhook
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// NewSessionRecord builds a fresh record in the disconnected state
func NewSessionRecord(id string, opts SessionOptions) *SessionRecord {
	now := time.Now()
	r := &SessionRecord{
		ID:         id,
		Status:     StatusDisconnected,
		Metadata:   map[string]any{},
		Webhooks:   []Webhook{},
		CreatedAt:  now,
		ModifiedAt: now,
	}
	r.Merge(opts)
	return r
}

// Merge folds opts into the record. Metadata entries are merged by key.
// Webhooks replace an existing subscription with the same target url and are
// appended otherwise, preserving order.
func (r *SessionRecord) Merge(opts SessionOptions) {
	for k, v := range opts.Metadata {
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		r.Metadata[k] = v
	}
	for _, wh := range opts.Webhooks {
		replaced := false
		for i := range r.Webhooks {
			if r.Webhooks[i].URL == wh.URL {
				r.Webhooks[i] = wh
				replaced = true
				break
			}
		}
		if !replaced {
			r.Webhooks = append(r.Webhooks, wh)
		}
	}
	r.ModifiedAt = time.Now()
}

// SessionInfo is an immutable snapshot of a session, safe to expose outside
// the registry boundary
type SessionInfo struct {
	ID       string         `json:"id"`
	Status   Status         `json:"status"`
	Metadata map[string]any `json:"metadata"`
	Webhooks []Webhook      `json:"webhooks"`
}

// Info returns a deep copied snapshot of the record
func (r *SessionRecord) Info() SessionInfo {
	md := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		md[k] = v
	}
	whs := make([]Webhook, len(r.Webhooks))
	for i, wh := range r.Webhooks {
		events := make([]string, len(wh.Events))
		copy(events, wh.Events)
		whs[i] = Webhook{URL: wh.URL, Events: events}
	}
	return SessionInfo{
		ID:       r.ID,
		Status:   r.Status,
		Metadata: md,
		Webhooks: whs,
	}
}

// Result is the outcome of a registry operation
type Result struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *SessionInfo `json:"data,omitempty"`
}

// OkResult returns a successful result carrying an optional info snapshot
func OkResult(message string, info *SessionInfo) Result {
	return Result{Success: true, Message: message, Data: info}
}

// FailResult returns a failed result
func FailResult(message string, info *SessionInfo) Result {
	return Result{Success: false, Message: message, Data: info}
}
