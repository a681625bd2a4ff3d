package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	conversationService "github.com/zhouzirui/callsim/backend/internal/service/conversation"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultReadTimeout  = 60 * time.Second
	writeWait           = 10 * time.Second
	maxFrameBytes       = 64 << 10
)

var errConnectionClosed = errors.New("websocket connection closed")

// WebSocketHandler 将 websocket 连接适配为编排器的双工事件通道
type WebSocketHandler struct {
	conversations *conversationService.Service
	upgrader      websocket.Upgrader
	pingInterval  time.Duration
	readTimeout   time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(conversations *conversationService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		conversations: conversations,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pingInterval: defaultPingInterval,
		readTimeout:  defaultReadTimeout,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/conversation/ws", h.handleWebSocket)
}

// handleWebSocket 处理一条连接：读循环、编排器主循环和心跳各占一个 goroutine
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	log.Printf("[ws] connection opened remote=%s", r.RemoteAddr)

	g, ctx := errgroup.WithContext(r.Context())
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	frames := make(chan []byte)
	orchestrator := h.conversations.NewOrchestrator(&connSink{conn: conn})

	g.Go(func() error { return h.readLoop(ctx, conn, frames) })
	g.Go(func() error { return orchestrator.Run(ctx, frames) })
	g.Go(func() error { return h.pingLoop(ctx, conn) })

	if err := g.Wait(); err != nil && !errors.Is(err, errConnectionClosed) && !errors.Is(err, context.Canceled) {
		log.Printf("[ws] connection error session=%s: %v", orchestrator.SessionID(), err)
	}
	log.Printf("[ws] connection closed remote=%s session=%s", r.RemoteAddr, orchestrator.SessionID())
}

// readLoop forwards inbound frames. It always returns a non-nil error so the group unwinds.
func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, frames chan<- []byte) error {
	defer close(frames)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] read error: %v", err)
			}
			return errConnectionClosed
		}

		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		select {
		case frames <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// connSink writes orchestrator events as JSON text frames. WriteControl (pings) may run
// concurrently with it; data frames only ever come from the orchestrator goroutine.
type connSink struct {
	conn *websocket.Conn
}

func (s *connSink) Send(_ context.Context, event conversationService.Event) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(event)
}
