package webchat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/socratic/pkg/events"
)

type StreamHubConfig struct {
	BaseCtx     context.Context
	ConvManager *ConvManager
}

// StreamHub owns websocket attachment for per-conversation state.
type StreamHub struct {
	baseCtx context.Context
	cm      *ConvManager
}

func NewStreamHub(cfg StreamHubConfig) (*StreamHub, error) {
	if cfg.BaseCtx == nil {
		return nil, errors.New("stream hub base context is nil")
	}
	if cfg.ConvManager == nil {
		return nil, errors.New("stream hub conv manager is nil")
	}
	return &StreamHub{
		baseCtx: cfg.BaseCtx,
		cm:      cfg.ConvManager,
	}, nil
}

type pongFrame struct {
	Type       string `json:"type"`
	ConvID     string `json:"conv_id"`
	ServerTime int64  `json:"server_time"`
}

// AttachWebSocket adds conn to the conversation, sends the current timeline
// as the first frame and answers pings until the client goes away.
func (h *StreamHub) AttachWebSocket(convID string, conn *websocket.Conn) error {
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return errors.New("missing convID")
	}
	if conn == nil {
		return errors.New("websocket connection is nil")
	}

	conv, err := h.cm.GetOrCreate(convID)
	if err != nil {
		return err
	}

	conv.pool.Add(conn)
	wsLog := log.With().
		Str("component", "webchat").
		Str("remote", conn.RemoteAddr().String()).
		Str("conv_id", convID).
		Logger()
	wsLog.Info().Msg("ws connected")

	// taken after Add so that no broadcast can be newer than the hello
	snap, loading := conv.Runner.Snapshot()
	if b, err := json.Marshal(events.NewSnapshot(snap, loading)); err == nil {
		conv.pool.SendToOne(conn, b)
	}

	go func() {
		defer conv.touch()
		defer conv.pool.Remove(conn)
		defer wsLog.Info().Msg("ws disconnected")
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				wsLog.Debug().Err(err).Msg("ws read loop end")
				return
			}
			if msgType == websocket.TextMessage && isPing(data) {
				b, _ := json.Marshal(pongFrame{Type: "ws.pong", ConvID: convID, ServerTime: time.Now().UnixMilli()})
				conv.pool.SendToOne(conn, b)
			}
		}
	}()
	return nil
}

func isPing(data []byte) bool {
	text := strings.TrimSpace(strings.ToLower(string(data)))
	if text == "ping" {
		return true
	}
	var v struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	return strings.EqualFold(v.Type, "ws.ping")
}
