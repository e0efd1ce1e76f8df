package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/socratic/pkg/chatrunner"
	"github.com/go-go-golems/socratic/pkg/events"
	"github.com/go-go-golems/socratic/pkg/tutor"
)

// maxChatBody bounds a chat request, base64 image included.
const maxChatBody = 20 << 20

// ChatRequest is the body of POST /api/chat. Image is a data URL or a bare
// base64 payload; MediaType is required for the latter.
type ChatRequest struct {
	ConvID    string `json:"conv_id"`
	Text      string `json:"text"`
	Image     string `json:"image,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

type ChatResponse struct {
	ConvID string `json:"conv_id"`
	Status string `json:"status"`
}

type ResetRequest struct {
	ConvID string `json:"conv_id"`
}

type ResetResponse struct {
	ConvID       string       `json:"conv_id"`
	Timeline     events.Event `json:"timeline"`
	SessionError string       `json:"session_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// NewChatHTTPHandler accepts a message and starts streaming the reply in the
// background; progress is pushed over the conversation's websocket.
func NewChatHTTPHandler(baseCtx context.Context, cm *ConvManager, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxChatBody)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		var att *tutor.Attachment
		if strings.TrimSpace(in.Image) != "" {
			a, err := tutor.ParseDataURL(in.Image, in.MediaType)
			if err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, tutor.ErrUnsupportedAttachment) {
					status = http.StatusUnsupportedMediaType
				}
				writeError(w, status, err.Error())
				return
			}
			att = a
		}
		if err := tutor.Validate(in.Text, att); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		conv, err := cm.GetOrCreate(in.ConvID)
		if err != nil {
			logger.Error().Err(err).Str("conv_id", in.ConvID).Msg("conversation not available")
			writeError(w, http.StatusInternalServerError, "conversation not available")
			return
		}
		conv.touch()

		if err := conv.Runner.SubmitAsync(baseCtx, in.Text, att); err != nil {
			switch {
			case errors.Is(err, chatrunner.ErrBusy):
				writeError(w, http.StatusConflict, err.Error())
			case errors.Is(err, tutor.ErrUnsupportedAttachment):
				writeError(w, http.StatusUnsupportedMediaType, err.Error())
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		writeJSON(w, http.StatusAccepted, ChatResponse{ConvID: conv.ID, Status: "streaming"})
	}
}

// NewResetHTTPHandler starts a new session for a conversation.
func NewResetHTTPHandler(cm *ConvManager, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var in ResetRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		conv, ok := cm.GetConversation(strings.TrimSpace(in.ConvID))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown conversation")
			return
		}
		conv.touch()

		out := ResetResponse{ConvID: conv.ID}
		if err := conv.Runner.Reset(req.Context()); err != nil {
			logger.Warn().Err(err).Str("conv_id", conv.ID).Msg("reset could not open a new session")
			out.SessionError = err.Error()
		}
		snap, loading := conv.Runner.Snapshot()
		out.Timeline = events.NewSnapshot(snap, loading)
		writeJSON(w, http.StatusOK, out)
	}
}

// NewTimelineHTTPHandler returns the current message list as a snapshot event.
func NewTimelineHTTPHandler(cm *ConvManager) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		convID := strings.TrimSpace(req.URL.Query().Get("conv_id"))
		if convID == "" {
			writeError(w, http.StatusBadRequest, "missing conv_id")
			return
		}
		conv, ok := cm.GetConversation(convID)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown conversation")
			return
		}
		snap, loading := conv.Runner.Snapshot()
		writeJSON(w, http.StatusOK, events.NewSnapshot(snap, loading))
	}
}

// NewWSHTTPHandler upgrades to a websocket on the conversation named by
// conv_id, or on a new conversation when it is absent.
func NewWSHTTPHandler(hub *StreamHub, upgrader websocket.Upgrader, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		convID := strings.TrimSpace(req.URL.Query().Get("conv_id"))
		if convID == "" {
			convID = uuid.NewString()
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		if err := hub.AttachWebSocket(convID, conn); err != nil {
			logger.Error().Err(err).Str("conv_id", convID).Msg("ws attach failed")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"failed to attach websocket"}`))
			_ = conn.Close()
		}
	}
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
