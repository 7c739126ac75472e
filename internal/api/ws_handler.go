package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/pubsub"
	"github.com/phrazzld/inkwell-api/internal/stream"
	"github.com/phrazzld/inkwell-api/internal/task"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
)

// wsSnapshot is the first frame sent on every stream connection: the
// task's current state, so late subscribers know what they missed.
type wsSnapshot struct {
	Kind string       `json:"kind"`
	Task TaskResponse `json:"task"`
}

// WSHandler upgrades authenticated clients to WebSocket connections that
// relay a task's stream events. The connection is read-only from the
// client's perspective; closing it never affects the task.
type WSHandler struct {
	taskStore task.Store
	bus       pubsub.Provider
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(taskStore task.Store, bus pubsub.Provider, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		taskStore: taskStore,
		bus:       bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from app origins; token auth is
			// what gates access.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "ws_handler")),
	}
}

// StreamTask handles GET /ws/stream/{task_id}. It subscribes to the
// task's channel before sending the snapshot so no event published in
// between is lost, then relays events verbatim until a terminal event
// arrives or the client goes away.
func (h *WSHandler) StreamTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	taskID, err := uuid.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	if _, err := h.taskStore.GetForOwner(r.Context(), taskID, userID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	sub, err := h.bus.Subscribe(r.Context(), stream.Channel(taskID))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to open stream", err)
		return
	}

	// The snapshot is read after the subscription is open. A terminal
	// event always follows its status write, so a task that finished
	// before the subscription shows up terminal here, and anything
	// later arrives on the subscription.
	rec, err := h.taskStore.GetForOwner(r.Context(), taskID, userID)
	if err != nil {
		_ = sub.Close()
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = sub.Close()
		h.logger.Warn("websocket upgrade failed",
			slog.String("task_id", taskID.String()),
			slog.String("error", err.Error()))
		return
	}

	log := h.logger.With(slog.String("task_id", taskID.String()))
	log.Debug("websocket stream opened")
	h.relay(r.Context(), conn, sub, rec, log)
}

func (h *WSHandler) relay(
	ctx context.Context,
	conn *websocket.Conn,
	sub pubsub.Subscription,
	rec *task.Record,
	log *slog.Logger,
) {
	defer func() {
		_ = sub.Close()
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Read pump exists only to notice the client going away; inbound
	// frames are ignored.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(wsSnapshot{Kind: "snapshot", Task: taskToResponse(rec)}); err != nil {
		log.Debug("failed to write snapshot", slog.String("error", err.Error()))
		return
	}

	// Terminal tasks have nothing further to stream.
	if rec.Status.Terminal() {
		h.closeNormally(conn)
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("websocket stream closed by client")
			return

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case msg, ok := <-sub.Messages():
			if !ok {
				h.closeNormally(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				log.Debug("failed to relay stream event", slog.String("error", err.Error()))
				return
			}
			ev, err := stream.Decode(msg.Payload)
			if err != nil {
				log.Warn("undecodable stream event relayed", slog.String("error", err.Error()))
				continue
			}
			if ev.Terminal() {
				log.Debug("websocket stream finished", slog.String("kind", string(ev.Kind)))
				h.closeNormally(conn)
				return
			}
		}
	}
}

func (h *WSHandler) closeNormally(conn *websocket.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete"),
	)
}
