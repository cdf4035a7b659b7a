// Package ws streams table events to connected clients. It is read-only:
// every state change goes through the HTTP API and reaches sockets through
// the broadcast channel.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/service/hand"
	"pokertable-service/internal/service/table"
	pkgAuth "pokertable-service/pkg/auth"
	appErr "pokertable-service/pkg/errors"
	"pokertable-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readTimeout = 60 * time.Second
	pingEvery   = 25 * time.Second
	writeWait   = 5 * time.Second
)

type Handler struct {
	tables *table.Service
	hands  *hand.Service
	sub    broadcast.Subscriber
	signer *pkgAuth.Signer
	prefix string

	mu    sync.Mutex
	conns map[presenceKey]int
}

type presenceKey struct {
	tableID  int64
	playerID int64
}

func NewHandler(tables *table.Service, hands *hand.Service, sub broadcast.Subscriber, signer *pkgAuth.Signer, prefix string) *Handler {
	return &Handler{
		tables: tables,
		hands:  hands,
		sub:    sub,
		signer: signer,
		prefix: prefix,
		conns:  make(map[presenceKey]int),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// snapshot is the first frame a client receives.
type snapshot struct {
	Type  string      `json:"type"`
	Table *table.View `json:"table"`
	Hand  *hand.View  `json:"hand,omitempty"`
}

func (h *Handler) HandleTableWS(c *gin.Context) {
	tableID, err := strconv.ParseInt(c.Param("tableId"), 10, 64)
	if err != nil || tableID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table id"})
		return
	}

	token, err := getTokenFromRequest(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := h.signer.ParsePlayerToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	playerID := claims.SubjectID

	ctx := c.Request.Context()
	view, err := h.tables.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, appErr.ErrTableNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load table"})
		return
	}
	snap := snapshot{Type: "snapshot", Table: view}
	if hv, err := h.hands.LatestHand(ctx, tableID, playerID); err == nil {
		snap.Hand = hv
	}

	if h.sub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime channel unavailable"})
		return
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	msgs, unsubscribe, err := h.sub.Subscribe(streamCtx, broadcast.TableTopic(h.prefix, tableID))
	if err != nil {
		cancel()
		logger.Log.Error("Failed to subscribe table topic", zap.Int64("tableID", tableID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime channel unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		cancel()
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection",
		zap.Int64("tableID", tableID),
		zap.Int64("playerID", playerID),
	)

	cl := &client{
		conn:     conn,
		playerID: playerID,
		tableID:  tableID,
		outbound: msgs,
		done:     make(chan struct{}),
		stop: func() {
			unsubscribe()
			cancel()
		},
	}
	h.connected(streamCtx, cl)
	cl.run(snap)
	h.disconnected(cl)
}

// connected and disconnected count sockets per player and table. The seat
// is only marked disconnected when the last one closes. Presence writes
// happen under the lock so a reconnect cannot be overtaken by the close of
// an older socket.
func (h *Handler) connected(ctx context.Context, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[cl.presenceKey()]++
	h.setPresence(ctx, cl, true)
}

func (h *Handler) disconnected(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := cl.presenceKey()
	if n := h.conns[key] - 1; n > 0 {
		h.conns[key] = n
		return
	}
	delete(h.conns, key)
	h.setPresence(context.Background(), cl, false)
}

// setPresence flips a seated player's connection status. Spectators have
// no seat and are ignored.
func (h *Handler) setPresence(ctx context.Context, cl *client, connected bool) {
	err := h.tables.SetPresence(ctx, cl.tableID, cl.playerID, connected)
	if err == nil || errors.Is(err, appErr.ErrNotSeated) || errors.Is(err, appErr.ErrTableNotFound) {
		return
	}
	logger.Log.Warn("presence update failed",
		zap.Int64("tableID", cl.tableID),
		zap.Int64("playerID", cl.playerID),
		zap.Bool("connected", connected),
		zap.Error(err),
	)
}

func getTokenFromRequest(c *gin.Context) (string, error) {
	token := strings.TrimSpace(c.Query("token"))
	if token != "" {
		return token, nil
	}
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
			if token != "" {
				return token, nil
			}
		}
	}
	return "", errors.New("missing token")
}

type client struct {
	conn     *websocket.Conn
	playerID int64
	tableID  int64
	outbound <-chan []byte
	done     chan struct{}
	stop     func()
}

func (c *client) presenceKey() presenceKey {
	return presenceKey{tableID: c.tableID, playerID: c.playerID}
}

func (c *client) run(first snapshot) {
	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	if err := c.conn.WriteJSON(first); err != nil {
		logger.Log.Info("WS write error", zap.Error(err), zap.Int64("playerID", c.playerID), zap.Int64("tableID", c.tableID))
	}
	go c.writePump()
	c.readPump()
}

// readPump only drains control frames and client pings. It returns when the
// peer goes away.
func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.stop()
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.Int64("playerID", c.playerID), zap.Int64("tableID", c.tableID))
			return
		}
		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &incoming); err != nil || incoming.Type != "ping" {
			continue
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Log.Info("WS write error", zap.Error(err), zap.Int64("playerID", c.playerID), zap.Int64("tableID", c.tableID))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
