package main

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"paydesk/internal/handlers"
)

const (
	readLimit     = 4 << 10
	readDeadline  = 120 * time.Second
	writeDeadline = 5 * time.Second
	pingInterval  = 15 * time.Second

	// closeReload tells the console to reload the page: the session is gone.
	closeReload = 4001
)

func (app *application) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(app.cfg.Server.AllowedOrigins, origin)
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// leadSearchStream carries keystrokes in ({"q": "..."}) and every search
// result of the workspace's payment form out, tagged with its sequence
// number. The stream ends when the form is rebuilt or the user signs out, and
// with a closeReload frame when a search reset the session.
func (app *application) leadSearchStream(w http.ResponseWriter, r *http.Request) {
	ws, ok := handlers.WorkspaceFrom(r.Context())
	if !ok {
		http.Error(w, "console session missing", http.StatusInternalServerError)
		return
	}
	search, err := ws.Search(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	up := app.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		app.errorLog.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	results, unsubscribe := search.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	go func() {
		defer cancel()
		for {
			var msg struct {
				Query string `json:"q"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			search.Type(msg.Query)
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = writeClose(conn, websocket.CloseNormalClosure, "")
			return
		case res, ok := <-results:
			if !ok {
				_ = writeClose(conn, websocket.CloseGoingAway, "search closed")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(res); err != nil {
				return
			}
			if res.Reload {
				_ = writeClose(conn, closeReload, "reload")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) error {
	return conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeDeadline),
	)
}
