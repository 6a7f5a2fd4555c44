package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/mindbase/internal/models"
	"github.com/raphaelgruber/mindbase/internal/service"
)

const (
	maxChatMessageBytes = 64 << 10
	pingInterval        = 10 * time.Second
	pongWait            = 30 * time.Second
	frameWriteWait      = 10 * time.Second
)

func (s *Server) chat(c *gin.Context) {
	var in service.ChatInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	res, err := s.deps.Retrieval.Chat(c.Request.Context(), ownerOf(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// chatStream upgrades to a websocket. Each client message is a ChatInput;
// the server answers with one sources frame, token frames, then done or error.
// The connection stays open for follow-up messages.
func (s *Server) chatStream(c *gin.Context) {
	owner := ownerOf(c)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxChatMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go keepAlive(ctx, conn)

	for {
		var in service.ChatInput
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("chat stream closed", "owner", owner, "error", err)
			}
			return
		}
		// Generation may take longer than the idle deadline.
		_ = conn.SetReadDeadline(time.Time{})

		write := func(f models.ChatFrame) error {
			_ = conn.SetWriteDeadline(time.Now().Add(frameWriteWait))
			return conn.WriteJSON(f)
		}
		res, err := s.deps.Retrieval.ChatStream(ctx, owner, in,
			func(sources []models.SavedItem) error {
				return write(models.ChatFrame{Type: models.FrameSources, Sources: sources})
			},
			func(token string) error {
				return write(models.ChatFrame{Type: models.FrameToken, Content: token})
			},
		)

		frame := models.ChatFrame{Type: models.FrameDone}
		if err != nil {
			_, apiErr := classify(err)
			frame = models.ChatFrame{Type: models.FrameError, Error: &apiErr}
			s.logger.Warn("chat stream failed", "owner", owner, "error", err)
		} else {
			frame.Answer = res.Answer
		}
		if err := write(frame); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// keepAlive pings until ctx is done. WriteControl is safe alongside WriteJSON.
func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(frameWriteWait)); err != nil {
				return
			}
		}
	}
}
