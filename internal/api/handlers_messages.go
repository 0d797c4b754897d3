package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/session"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, errInvalidArgument, "limit must be 1-1000")
			return
		}
		limit = n
	}
	msgs, err := h.deps.DB.ListMessages(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// packetIDFromMessageID extracts the packetId suffix from a composite
// "{nodeNum}_{packetId}" message id.
func packetIDFromMessageID(id string) (uint32, error) {
	i := strings.LastIndex(id, "_")
	if i < 0 {
		return 0, fmt.Errorf("api: invalid message id %q", id)
	}
	v, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("api: invalid message id %q: %w", id, err)
	}
	return uint32(v), nil
}

// messageReactions lists the tapbacks recorded against one feed message.
func (h *handlers) messageReactions(w http.ResponseWriter, r *http.Request) {
	packetID, err := packetIDFromMessageID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidArgument, err.Error())
		return
	}
	byPacket, err := h.deps.DB.ReactionsForPacketIDs(r.Context(), []uint32{packetID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(byPacket[packetID]))
	for _, m := range byPacket[packetID] {
		out = append(out, map[string]any{
			"emoji":       m.Text,
			"fromNodeNum": m.FromNodeNum,
			"fromNodeId":  nodeIDHex(m.FromNodeNum),
			"timestamp":   m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type sendMessageRequest struct {
	Text        string  `json:"text"`
	Channel     int32   `json:"channel"`
	Destination *string `json:"destination,omitempty"`
	ReplyID     uint32  `json:"replyId,omitempty"`
	Emoji       int32   `json:"emoji,omitempty"`
}

// sendMessage returns 202 once the outbound row is persisted; the send
// itself and the ACK wait run in the background, and the ACK arrives
// asynchronously via ROUTING_APP ingest.
func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := readJSON(r, &req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "text is required")
		return
	}

	to := uint32(0xFFFFFFFF)
	channel := req.Channel
	if req.Destination != nil {
		nodeNum, err := parseNodeID(*req.Destination)
		if err != nil {
			writeError(w, http.StatusBadRequest, errInvalidArgument, err.Error())
			return
		}
		to = nodeNum
		channel = -1
	}

	packetID := session.NewOutboundPacketID()
	wireChannel := channel
	if wireChannel < 0 {
		wireChannel = 0
	}
	msg := meshproto.TextMessage(packetID, to, uint32(wireChannel), req.Text, req.ReplyID, req.Emoji, true)
	raw, err := meshproto.New().EncodeToRadio(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}

	localNode := uint32(0)
	if h.deps.LocalNode != nil {
		localNode = h.deps.LocalNode()
	}
	id := fmt.Sprintf("%d_%d", localNode, packetID)
	outbound := store.Message{
		ID:          id,
		FromNodeNum: localNode,
		ToNodeNum:   to,
		Channel:     channel,
		Portnum:     1,
		Text:        req.Text,
		Timestamp:   unixNow(),
		ReplyID:     req.ReplyID,
		Emoji:       int(req.Emoji),
	}
	if _, err := h.deps.DB.InsertMessage(r.Context(), outbound); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}

	// Detached from the request context: the handler returns immediately
	// while the ACK wait continues for up to 30s. A timeout
	// marks the row ackFailed; the radio owns retransmission, we don't.
	go func() {
		ctx := context.Background()
		err := h.deps.Session.Send(ctx, packetID, raw)
		switch {
		case err == nil:
			// ROUTING_APP ingest marks acknowledged; nothing to do here.
		case errors.Is(err, session.ErrAckTimeout):
			if dbErr := h.deps.DB.MarkAckFailed(ctx, id); dbErr != nil {
				h.deps.Log.Error("api: mark ack failed", zap.String("id", id), zap.Error(dbErr))
			}
		default:
			h.deps.Log.Warn("api: message send failed", zap.Uint32("packetId", packetID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "packetId": packetID, "channel": channel, "to": to})
}

type markReadRequest struct {
	ScopeKey string `json:"scopeKey"`
}

func (h *handlers) markRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := readJSON(r, &req); err != nil || req.ScopeKey == "" {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "scopeKey is required")
		return
	}
	if err := h.deps.DB.SetReadState(r.Context(), req.ScopeKey, unixNow()); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
