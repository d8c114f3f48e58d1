package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"building_monitor/internal/logger"
	"building_monitor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 5 * time.Second
	maxInterval      = 60 * time.Second
	maxIntervalMilli = 60_000

	frameGroups = "groups"
	frameError  = "error"
)

// wsEnvelope is the frame written to WebSocket clients.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Clients authenticate with a bearer token, so any origin may connect.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statusStream pushes group statuses to one client until it disconnects.
type statusStream struct {
	conn     *websocket.Conn
	monitor  service.Monitoring
	group    string // empty: every group
	interval time.Duration
	log      *logger.Logger
}

// @Summary      Status stream
// @Description  WebSocket that pushes group statuses every interval. Optional 'group' narrows the stream to one group.
// @Tags         groups
// @Param        interval      query  string  false  "Push interval (Go duration, max 60s)"  example(5s)
// @Param        interval_ms   query  int     false  "Push interval in milliseconds"
// @Param        group         query  string  false  "Group name"
// @Param        access_token  query  string  false  "Bearer token for clients that cannot set headers"
// @Router       /ws [get]
// @Security     BearerAuth
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	s := &statusStream{
		conn:     conn,
		monitor:  h.services.Monitoring,
		group:    c.Query("group"),
		interval: interval,
		log:      h.log.With("remote", c.ClientIP()),
	}
	s.run(c.Request.Context())
}

func (s *statusStream) run(ctx context.Context) {
	s.conn.SetReadLimit(maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.drain(done)

	ticker := time.NewTicker(s.interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	if !s.push() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Infow("ws_ping_failed", "err", err)
				return
			}
		case <-ticker.C:
			if !s.push() {
				return
			}
		}
	}
}

// push writes one status frame. It reports false when the stream should end,
// either on a write failure or after telling the client its group is unknown.
func (s *statusStream) push() bool {
	frame := wsEnvelope{Type: frameGroups}
	keepOpen := true
	if s.group == "" {
		frame.Data = s.monitor.Groups()
	} else if st, err := s.monitor.Group(s.group); err != nil {
		frame = wsEnvelope{Type: frameError, Error: err.Error()}
		keepOpen = false
	} else {
		frame.Data = []service.GroupStatus{st}
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(frame); err != nil {
		s.log.Infow("ws_write_failed", "err", err)
		return false
	}
	return keepOpen
}

// drain reads and discards client frames so control frames are handled and a
// disconnect is noticed.
func (s *statusStream) drain(done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.log.Debugw("ws_read_closed", "err", err)
			return
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultInterval
}
