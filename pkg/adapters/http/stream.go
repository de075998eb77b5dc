package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/stream"
	"github.com/coder/websocket"
)

const wsWriteTimeout = 10 * time.Second

type emitResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
	Buffered  bool `json:"buffered"`
}

// streamSSE holds a server-sent event stream open until the workflow payload arrives.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sw, err := stream.NewSSEWriter(w)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logPump(id, "sse", s.streams.Connect(id).Pump(r.Context(), sw, s.keepAlive))
}

// streamWS delivers the workflow payload as one text message, pinging while it waits.
func (s *Server) streamWS(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err, "workflow_id", id)
		return
	}

	// CloseRead services pongs and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	err = s.streams.Connect(id).Pump(ctx, &wsWriter{conn: conn, ctx: ctx}, s.keepAlive)
	s.logPump(id, "websocket", err)

	switch {
	case err == nil:
		_ = conn.Close(websocket.StatusNormalClosure, "delivered")
	case errors.Is(err, stream.ErrPreempted):
		_ = conn.Close(websocket.StatusGoingAway, "preempted")
	default:
		_ = conn.CloseNow()
	}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range s.origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}

func (s *Server) logPump(id, transport string, err error) {
	switch {
	case err == nil:
		s.logger.Debug("stream delivered", "workflow_id", id, "transport", transport)
	case errors.Is(err, stream.ErrPreempted):
		s.logger.Debug("stream preempted", "workflow_id", id, "transport", transport)
	case errors.Is(err, domain.ErrStreamDisconnected):
		s.logger.Debug("stream disconnected", "workflow_id", id, "transport", transport, "err", err)
	default:
		s.logger.Warn("stream write failed", "workflow_id", id, "transport", transport, "err", err)
	}
}

// emit accepts any JSON document and hands it to the workflow's channel.
func (s *Server) emit(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read body: %v", domain.ErrValidation, err))
		return
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: payload must be JSON: %v", domain.ErrValidation, err))
		return
	}

	delivered := s.streams.Emit(id, buf.Bytes())
	if s.onEmit != nil {
		s.onEmit(delivered)
	}
	writeJSON(w, http.StatusOK, emitResponse{OK: true, Delivered: delivered, Buffered: !delivered})
}

type wsWriter struct {
	conn *websocket.Conn
	ctx  context.Context
}

func (w *wsWriter) WriteEvent(data []byte) error {
	ctx, cancel := context.WithTimeout(w.ctx, wsWriteTimeout)
	defer cancel()
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsWriter) WriteKeepAlive() error {
	ctx, cancel := context.WithTimeout(w.ctx, wsWriteTimeout)
	defer cancel()
	return w.conn.Ping(ctx)
}
