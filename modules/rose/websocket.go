package rose

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	// 같은 서버가 페이지를 내려주므로 origin 제한은 CORS 설정에 맡김
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket - GET /ws : 세션 상태가 바뀔 때마다 스냅샷 JSON 푸시
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	log := zerolog.Ctx(r.Context())

	conn, err := upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ [WebSocket] Upgrade failed")
		return
	}

	updates, unsubscribe := ctrl.Subscribe()
	log.Debug().Msg("🔍 [WebSocket] Client subscribed")

	closed := make(chan struct{})
	go readPump(conn, closed)
	writePump(conn, ctrl.Snapshot(), updates, closed)

	unsubscribe()
	conn.Close()
	log.Debug().Msg("👋 [WebSocket] Client left")
}

// readPump - 클라이언트 메시지는 무시하고 연결 종료만 감지
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump - 처음 스냅샷을 보낸 뒤 변경 사항을 순서대로 전송
func writePump(conn *websocket.Conn, initial Snapshot, updates <-chan Snapshot, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	send := func(snap Snapshot) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(snap)
	}

	if err := send(initial); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case snap := <-updates:
			if err := send(snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
