package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// retryMillis is the reconnect delay suggested to browsers.
	retryMillis  = 5000
	writeTimeout = time.Minute
)

// Handler serves the event stream. ?types=stats.updated,review.requested
// narrows what a client receives.
type Handler struct {
	manager   *Manager
	logger    *slog.Logger
	heartbeat time.Duration
}

func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger, heartbeat: 30 * time.Second}
}

// ParseTypes splits a comma separated list of event types.
func ParseTypes(raw string) []EventType {
	var types []EventType
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, EventType(part))
		}
	}
	return types
}

// stream writes frames to one response.
type stream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// send writes one frame and flushes it. The write deadline moves forward
// with every frame so a stalled reader is eventually cut off.
func (s stream) send(ev Event, extra ...string) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	var b strings.Builder
	for _, line := range extra {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if ev.ID != 0 {
		b.WriteString("id: " + strconv.FormatUint(ev.ID, 10) + "\n")
	}
	b.WriteString("event: " + string(ev.Type) + "\n")
	b.WriteString("data: ")
	b.Write(payload)
	b.WriteString("\n\n")

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}
	_ = s.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	s := stream{w: w, rc: http.NewResponseController(w)}
	if err := s.rc.Flush(); err != nil {
		h.logger.Error("response cannot stream", slog.String("error", err.Error()))
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(ParseTypes(r.URL.Query().Get("types"))...)
	if err != nil {
		h.logger.Error("register client", slog.String("error", err.Error()))
		http.Error(w, "could not open event stream", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)
	log := h.logger.With(slog.String("client_id", client.ID))

	hello := newEvent(EventConnected, map[string]string{"client_id": client.ID})
	if err := s.send(hello, "retry: "+strconv.Itoa(retryMillis)); err != nil {
		log.Warn("send connected frame", slog.String("error", err.Error()))
		return
	}

	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()

	for {
		var ev Event
		select {
		case e, ok := <-client.EventChan:
			if !ok {
				log.Info("stream closed by server")
				return
			}
			ev = e
		case <-tick.C:
			ev = NewHeartbeatEvent()
		case <-client.Done:
			log.Info("stream closed by server")
			return
		case <-ctx.Done():
			log.Debug("client went away")
			return
		}

		if err := s.send(ev); err != nil {
			log.Info("client disconnected", slog.String("event_type", string(ev.Type)))
			return
		}
	}
}
