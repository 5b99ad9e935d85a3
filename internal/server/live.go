package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/live"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"go.uber.org/zap"
)

// pendingUpdates keeps the newest update per kind. Every update carries the full list, so older ones can be
// dropped without losing state.
type pendingUpdates struct {
	mu     sync.Mutex
	latest map[records.Kind]live.Update
	order  []records.Kind
	notify chan struct{}
}

func newPendingUpdates() *pendingUpdates {
	return &pendingUpdates{
		latest: make(map[records.Kind]live.Update),
		notify: make(chan struct{}, 1),
	}
}

// push never blocks; it runs inside subscription callbacks.
func (p *pendingUpdates) push(u live.Update) {
	p.mu.Lock()
	if _, ok := p.latest[u.Kind]; !ok {
		p.order = append(p.order, u.Kind)
	}
	p.latest[u.Kind] = u
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *pendingUpdates) drain() []live.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]live.Update, 0, len(p.order))
	for _, kind := range p.order {
		out = append(out, p.latest[kind])
	}
	p.latest = make(map[records.Kind]live.Update)
	p.order = p.order[:0]
	return out
}

func parseLiveKinds(raw string) ([]records.Kind, error) {
	if strings.TrimSpace(raw) == "" {
		return []records.Kind{records.KindProducts}, nil
	}
	seen := make(map[records.Kind]struct{})
	var kinds []records.Kind
	for _, part := range strings.Split(raw, ",") {
		kind, err := records.Parse(part)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// StreamLive pushes the full list of each requested kind as server-sent events whenever it changes. A stream is
// bound to the store in its path; clients reconnect to follow another store.
func (s *Server) StreamLive(c *gin.Context) {
	kinds, err := parseLiveKinds(c.Query("kinds"))
	if err != nil {
		AbortWithError(c, newValidationError("kinds", "invalid_kinds", "unknown kind"))
		return
	}

	ctx := c.Request.Context()
	storeID := storeIDFrom(c)
	session := live.NewSession(s.registry, storeID, s.log)
	defer session.Close()

	pending := newPendingUpdates()
	for _, kind := range kinds {
		if err := session.Watch(ctx, kind, repository.ListOptions{}, pending.push); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.liveHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pending.notify:
			for _, update := range pending.drain() {
				if err := writeLiveUpdate(writer, update); err != nil {
					s.log.Debug("live stream closed", zap.String("store_id", storeID), zap.Error(err))
					return
				}
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type liveErrorEvent struct {
	StoreID string       `json:"store_id"`
	Kind    records.Kind `json:"kind"`
	Error   string       `json:"error"`
}

func writeLiveUpdate(w io.Writer, update live.Update) error {
	event := update.Kind.String()
	var payload any = update
	if update.Err != nil {
		_, errPayload := mapError(update.Err)
		event = "error"
		payload = liveErrorEvent{StoreID: update.StoreID, Kind: update.Kind, Error: errPayload.Type}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
