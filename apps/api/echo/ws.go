package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	notifysvc "github.com/trezcool/iems/services/notify"
)

const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// send pings to peer with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// clients only answer pings
	maxMessageSize = 512
)

func (api *userApi) upgrader() websocket.Upgrader {
	frontend := strings.TrimRight(api.auth.conf.FrontendBaseURL, "/")
	testMode := api.auth.conf.TestMode
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if testMode {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == frontend
		},
	}
}

// changes streams the identity changes of the caller over a websocket until either side hangs up.
func (api *userApi) changes(hub *notifysvc.Hub) echo.HandlerFunc {
	upgrader := api.upgrader()
	return func(ctx echo.Context) error {
		claims, err := api.auth.claims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}

		conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
		if err != nil {
			// the upgrader already replied
			api.logger.Debug("websocket upgrade failed", err)
			return nil
		}
		defer conn.Close()

		sub := hub.Subscribe(claims.Subject)
		defer sub.Close()

		done := make(chan struct{})
		go readPump(conn, done)
		writePump(conn, sub, done)
		return nil
	}
}

// readPump discards the peer's messages and keeps the read deadline moving on pongs.
// done is closed once the peer is gone.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, sub *notifysvc.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case change, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok { // hub closed
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
