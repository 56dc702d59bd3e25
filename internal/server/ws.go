package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func registerWSRoutes(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /ws/stream/{meeting_id}", func(w http.ResponseWriter, r *http.Request) {
		meetingID := r.PathValue("meeting_id")
		if !validMeetingID(meetingID) {
			writeJSONError(w, http.StatusForbidden, "invalid meeting id")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "meeting_id", meetingID, "error", err)
			return
		}
		deps.Stream.Serve(r.Context(), conn, meetingID)
	})

	mux.HandleFunc("GET /ws/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"websocket_available": true,
			"active_sessions":     deps.Registry.Len(),
			"backend_version":     deps.Version,
		})
	})

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		payload, err := json.Marshal(ConnectionEvent{
			Event:     newEvent(TypeConnection),
			Connected: true,
		})
		if err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, payload)
		}

		ch := deps.Hub.Subscribe()
		defer deps.Hub.Unsubscribe(ch)

		// Reads only detect the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg := <-ch:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	})
}
