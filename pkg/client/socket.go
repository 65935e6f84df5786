package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/taskhub/pkg/event"
)

const (
	// socketWriteWait は1メッセージの書き込みに許す時間。
	socketWriteWait = 10 * time.Second
	// socketPongWait はサーバーからのPingを待つ時間。
	socketPongWait = 90 * time.Second
)

// Socket はtaskhubサーバーへのWebSocket接続。
type Socket struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// WebSocketURL はHTTPのベースURLを/wsのWebSocket URLに変換する。
func WebSocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Dial はサーバーに接続し、userIDでregisterを送る。
func Dial(ctx context.Context, baseURL, token, userID string) (*Socket, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, WebSocketURL(baseURL), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket接続に失敗 (status=%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket接続に失敗: %w", err)
	}

	s := &Socket{ws: ws}
	if err := s.Send(event.TypeRegister, userID); err != nil {
		ws.Close()
		return nil, err
	}
	return s, nil
}

// Send はイベントを1件送信する。
func (s *Socket) Send(eventType event.Type, payload any) error {
	msg, err := event.Encode(eventType, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(socketWriteWait))
	if err := s.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("%sの送信に失敗: %w", eventType, err)
	}
	return nil
}

// Run は受信したイベントをhandleに渡し続ける。
// ctxが終了するか接続が切れると戻る。ctxの終了による切断ではnilを返す。
func (s *Socket) Run(ctx context.Context, handle func(*event.Envelope) error) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	_ = s.ws.SetReadDeadline(time.Now().Add(socketPongWait))
	s.ws.SetPingHandler(func(data string) error {
		_ = s.ws.SetReadDeadline(time.Now().Add(socketPongWait))
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(socketWriteWait))
	})

	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("WebSocketの受信に失敗: %w", err)
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(socketPongWait))

		env, err := event.Decode(msg)
		if err != nil {
			log.Printf("[Client] 不正なメッセージを無視: %v", err)
			continue
		}
		if err := handle(env); err != nil {
			log.Printf("[Client] %sの処理に失敗: %v", env.Event, err)
		}
	}
}

// Close は接続を閉じる。
func (s *Socket) Close() error {
	s.writeMu.Lock()
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()

	if err := s.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
