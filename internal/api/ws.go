package api

import (
	"context"
	"errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/MrWong99/podsync/internal/session"
)

// clockReport is sent by a browser player to drive the session clock.
type clockReport struct {
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
}

// streamState upgrades to a WebSocket. Client messages are clock reports;
// the server pushes the current state and then every state the session
// publishes.
func (s *Server) streamState(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		logger(c).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	states, cancel := sess.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()
	go s.readReports(ctx, stop, conn, sess)

	log := logger(c)
	log.Debug("websocket client connected")

	if err := writeState(ctx, conn, sess.State()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug("websocket client gone")
			return
		case st, ok := <-states:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := writeState(ctx, conn, st); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("websocket write failed", "err", err)
				}
				return
			}
		}
	}
}

func writeState(ctx context.Context, conn *websocket.Conn, st session.State) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, st)
}

// readReports forwards clock reports until the connection fails, then calls
// stop.
func (s *Server) readReports(ctx context.Context, stop context.CancelFunc, conn *websocket.Conn, sess *session.Session) {
	defer stop()
	for {
		var r clockReport
		if err := wsjson.Read(ctx, conn, &r); err != nil {
			return
		}
		if err := sess.ReportPosition(r.Position, r.Playing); err != nil {
			conn.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}
	}
}
