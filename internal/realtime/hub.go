package realtime

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nao1215/taskhub/pkg/event"
	"github.com/nao1215/taskhub/pkg/middleware"
)

const (
	// writeWait は1メッセージの書き込みに許す時間。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのPongを待つ時間。
	pongWait = 60 * time.Second
	// pingPeriod はPingを送る間隔。pongWaitより短くなければならない。
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize はクライアントから受け付ける1メッセージの最大サイズ。
	maxMessageSize = 4096
	// defaultSendBuffer は接続ごとの送信キューの既定長。
	defaultSendBuffer = 16
)

var (
	// ErrConnectionClosed は接続が既に閉じられていることを表す。
	ErrConnectionClosed = errors.New("接続は既に閉じられています")
	// ErrSendQueueFull は接続の送信キューが溢れたことを表す。
	ErrSendQueueFull = errors.New("送信キューが満杯です")
)

// Hub はWebSocket接続の集合を管理し、Transportを実装する。
type Hub struct {
	// registry は register イベントで更新されるユーザーと接続の対応表。
	registry *Registry
	// upgrader はHTTP接続をWebSocketに昇格させる。
	upgrader websocket.Upgrader
	// sendBuffer は接続ごとの送信キューの長さ。
	sendBuffer int
	// mu はconnsへの並行アクセスを保護する。
	mu sync.RWMutex
	// conns は接続IDから接続への対応。
	conns map[string]*conn
}

// conn は1本のWebSocket接続。書き込みはwritePumpゴルーチンだけが行う。
type conn struct {
	id string
	// authUserID はJWTで認証されたユーザーID。未認証なら空。
	authUserID string
	ws         *websocket.Conn
	send       chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
}

// NewHub は新しいHubを生成する。
// allowedOrigins が空の場合はすべてのOriginを許可する。
func NewHub(registry *Registry, allowedOrigins []string, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}

	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}

	return &Hub{
		registry:   registry,
		sendBuffer: sendBuffer,
		conns:      make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// CLIクライアントなどブラウザ以外はOriginを送らない
				if origin == "" || len(origins) == 0 {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// Handler はWebSocket接続を受け付けるGinハンドラを返す。
// JWTAuthミドルウェアの後ろに置くことで、認証済みユーザーIDを接続に紐付ける。
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[Realtime] WebSocketへの昇格に失敗: %v", err)
			return
		}

		cn := &conn{
			id:         uuid.New().String(),
			authUserID: middleware.GetUserID(c),
			ws:         ws,
			send:       make(chan []byte, h.sendBuffer),
			closed:     make(chan struct{}),
		}

		h.mu.Lock()
		h.conns[cn.id] = cn
		h.mu.Unlock()

		log.Printf("[Realtime] 接続しました: conn=%s", cn.id)

		go h.writePump(cn)
		go h.readPump(cn)
	}
}

// SendAll は接続中のすべてのクライアントの送信キューにメッセージを積む。
func (h *Hub) SendAll(msg []byte) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for _, cn := range h.conns {
		targets = append(targets, cn)
	}
	h.mu.RUnlock()

	for _, cn := range targets {
		if err := cn.enqueue(msg); err != nil {
			log.Printf("[Realtime] 一斉配信を破棄 (conn=%s): %v", cn.id, err)
		}
	}
}

// Send は指定した接続の送信キューにメッセージを積む。
func (h *Hub) Send(connID string, msg []byte) error {
	h.mu.RLock()
	cn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionClosed
	}
	return cn.enqueue(msg)
}

// Len は現在の接続数を返す。
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close はすべての接続を閉じる。サーバー停止時に呼び出す。
func (h *Hub) Close() {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for _, cn := range h.conns {
		targets = append(targets, cn)
	}
	h.mu.RUnlock()

	for _, cn := range targets {
		cn.close()
	}
}

// enqueue は送信キューにメッセージを積む。キューが満杯なら待たずに破棄する。
func (cn *conn) enqueue(msg []byte) error {
	select {
	case <-cn.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case cn.send <- msg:
		return nil
	case <-cn.closed:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

func (cn *conn) close() {
	cn.closeOnce.Do(func() {
		close(cn.closed)
		_ = cn.ws.Close()
	})
}

// remove は接続を管理対象から外し、レジストリからも削除する。
func (h *Hub) remove(cn *conn) {
	h.registry.Unregister(cn.id)

	h.mu.Lock()
	delete(h.conns, cn.id)
	h.mu.Unlock()

	cn.close()
}

// readPump はクライアントからのメッセージを読み続ける。
// 読み込みが失敗した時点で接続を片付ける。
func (h *Hub) readPump(cn *conn) {
	defer func() {
		h.remove(cn)
		log.Printf("[Realtime] 切断しました: conn=%s", cn.id)
	}()

	cn.ws.SetReadLimit(maxMessageSize)
	_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := cn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Realtime] 読み込みエラー (conn=%s): %v", cn.id, err)
			}
			return
		}
		h.handleMessage(cn, msg)
	}
}

// handleMessage はクライアントから届いた1メッセージを処理する。
// 現在解釈するのは register イベントだけ。
func (h *Hub) handleMessage(cn *conn, msg []byte) {
	env, err := event.Decode(msg)
	if err != nil {
		log.Printf("[Realtime] 不正なメッセージを無視 (conn=%s): %v", cn.id, err)
		return
	}

	switch env.Event {
	case event.TypeRegister:
		userID, err := event.DecodeData[string](env)
		if err != nil || *userID == "" {
			log.Printf("[Realtime] 不正なregisterを無視 (conn=%s)", cn.id)
			return
		}
		if cn.authUserID != "" && cn.authUserID != *userID {
			log.Printf("[Realtime] 認証ユーザーと異なるregisterを無視 (conn=%s, auth=%s, register=%s)", cn.id, cn.authUserID, *userID)
			return
		}
		h.registry.Register(*userID, cn.id)
		log.Printf("[Realtime] ユーザー %s を接続 %s に登録しました", *userID, cn.id)
	default:
		log.Printf("[Realtime] 未対応のイベントを無視 (conn=%s, event=%s)", cn.id, env.Event)
	}
}

// writePump は送信キューのメッセージを書き込み、定期的にPingを送る。
func (h *Hub) writePump(cn *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cn.close()
	}()

	for {
		select {
		case <-cn.closed:
			return
		case msg := <-cn.send:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[Realtime] 書き込みに失敗 (conn=%s): %v", cn.id, err)
				return
			}
		case <-ticker.C:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
