package handlers

import (
	"context"

	pojie "github.com/Pojie/pojie-go"
	"github.com/gofiber/contrib/websocket"
)

// ProgressHandler streams progress snapshots to a websocket client. Slow
// clients only ever see the latest snapshot.
type ProgressHandler struct {
	client *pojie.Client
	logger pojie.Logger
}

func NewProgressHandler(client *pojie.Client, logger pojie.Logger) *ProgressHandler {
	return &ProgressHandler{client: client, logger: logger}
}

func (h *ProgressHandler) Handle(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client never sends anything; reading detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for snap := range h.client.Watch(ctx) {
		if err := c.WriteJSON(snap); err != nil {
			h.logger.Debugf("progress stream closed: err=%v", err)
			return
		}
	}
}
