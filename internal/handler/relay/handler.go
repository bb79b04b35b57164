// Package relay is the client-facing WebSocket gateway: it authenticates the
// upgrade, decodes frames and drives sessions through the processing backends.
package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-journal/backend/internal/auth"
	guidedmodel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	model "github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/internal/service/journal"
	"github.com/zhouzirui/z-journal/backend/internal/service/pipeline"
	"github.com/zhouzirui/z-journal/backend/internal/service/realtime"
	"github.com/zhouzirui/z-journal/backend/internal/service/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// ModeResolver decides which backend serves a requested session.
type ModeResolver interface {
	Resolve(ctx context.Context, requested model.Mode, sessionType string) (model.Mode, error)
}

// Deps 汇总网关依赖的服务。
type Deps struct {
	Verifier           auth.Verifier
	Registry           *session.Registry
	Router             ModeResolver
	Guided             guidedmodel.Store
	Context            *journal.ContextLoader
	Saver              journal.EntrySaver
	Pipeline           *pipeline.Standard
	Realtime           *realtime.Manager
	MaxSessionDuration time.Duration
}

// Handler WebSocket 中继处理器
type Handler struct {
	deps     Deps
	upgrader websocket.Upgrader

	// owners maps a session id to the connection currently driving it, so a
	// superseded connection does not end a session that was resumed elsewhere.
	mu     sync.Mutex
	owners map[string]*connection
}

// New 创建中继处理器，并在会话被空闲回收时关闭对应的实时桥接。
func New(deps Deps) *Handler {
	h := &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		owners: make(map[string]*connection),
	}
	if deps.Registry != nil {
		deps.Registry.OnEvict(h.onEvict)
	}
	return h
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// handleWebSocket 升级连接、校验令牌并进入读循环
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	token, ok := auth.TokenFromRequest(r)
	if !ok {
		closeWith(conn, auth.CloseMissingToken, "missing token")
		return
	}
	userID, err := h.deps.Verifier.Verify(r.Context(), token)
	if err != nil {
		log.Printf("[relay] rejected token: %v", err)
		closeWith(conn, auth.CloseInvalidToken, "invalid token")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newConnection(h, conn, userID)
	log.Printf("[relay] connected user=%s", userID)
	defer h.disconnect(c)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go c.pingLoop(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("[relay] read error user=%s: %v", c.userID(), err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if !c.handleFrame(ctx, data) {
			return
		}
	}
}

// disconnect tears down what the connection still owns: the realtime bridge
// first, then the session itself so usage is accounted.
func (h *Handler) disconnect(c *connection) {
	userID := c.userID()
	log.Printf("[relay] disconnected user=%s", userID)

	sess := h.deps.Registry.Get(userID)
	if sess == nil || !h.release(sess.ID, c) {
		return
	}
	h.closeBridge(sess.ID)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := h.deps.Registry.End(ctx, userID, "disconnect"); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		log.Printf("[relay] end on disconnect failed user=%s: %v", userID, err)
	}
}

func (h *Handler) claim(sessionID string, c *connection) {
	h.mu.Lock()
	h.owners[sessionID] = c
	h.mu.Unlock()
}

// release drops c's ownership of sessionID and reports whether c owned it.
func (h *Handler) release(sessionID string, c *connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owners[sessionID] != c {
		return false
	}
	delete(h.owners, sessionID)
	return true
}

func (h *Handler) forget(sessionID string) {
	h.mu.Lock()
	delete(h.owners, sessionID)
	h.mu.Unlock()
}

func (h *Handler) closeBridge(sessionID string) {
	if h.deps.Realtime != nil {
		h.deps.Realtime.Close(sessionID)
	}
}

func (h *Handler) onEvict(sess *session.Session) {
	h.closeBridge(sess.ID)
	h.forget(sess.ID)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		log.Printf("[relay] close frame not sent: %v", err)
	}
}
