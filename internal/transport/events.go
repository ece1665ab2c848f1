package transport

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/challenge-runtime/internal/event"
)

// EventServer streams domain events to websocket subscribers at /events.
type EventServer struct {
	collector *event.Collector
	logger    *zap.Logger
	srv       *http.Server
}

func NewEventServer(collector *event.Collector, logger *zap.Logger) *EventServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EventServer{collector: collector, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

func (s *EventServer) ListenAndServe(addr string) error {
	s.srv.Addr = addr
	s.logger.Info("event stream listening", zap.String("addr", addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *EventServer) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

func (s *EventServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// CloseRead surfaces client disconnects through ctx cancellation.
	ctx := conn.CloseRead(r.Context())

	events, cancel := s.collector.Subscribe(128)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				s.logger.Debug("event subscriber write failed", zap.Error(err))
				return
			}
		}
	}
}
