package ws

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pokertable-service/internal/model"
	"pokertable-service/internal/service"
	"pokertable-service/internal/service/broadcast"
	"pokertable-service/internal/testutil"
	pkgAuth "pokertable-service/pkg/auth"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type idleSubscriber struct{}

func (idleSubscriber) Subscribe(context.Context, string) (<-chan []byte, func(), error) {
	return make(chan []byte), func() {}, nil
}

func seatStatus(t *testing.T, db *gorm.DB, tableID, playerID int64) string {
	t.Helper()
	var st model.Seat
	require.NoError(t, db.Where("table_id = ? AND player_id = ?", tableID, playerID).First(&st).Error)
	return st.Status
}

func TestSeatStaysConnectedUntilLastSocketCloses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.OpenDB(t)
	services := service.NewContainer(db, broadcast.NewRecorder(), nil, nil, quartz.NewMock(t), service.Config{})
	tbl := testutil.SeedTable(t, db, model.TableKindFriends, 6, 5, 10)
	testutil.SeedSeat(t, db, tbl.ID, 0, 101, 1000)

	signer := pkgAuth.NewSigner("test-secret", time.Hour)
	h := NewHandler(services.Table, services.Hand, idleSubscriber{}, signer, "poker")
	r := gin.New()
	r.GET("/ws/tables/:tableId", h.HandleTableWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	token, err := signer.GenerateToken(101)
	require.NoError(t, err)
	url := fmt.Sprintf("ws%s/ws/tables/%d?token=%s", strings.TrimPrefix(srv.URL, "http"), tbl.ID, token)

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		var snap map[string]interface{}
		require.NoError(t, conn.ReadJSON(&snap))
		require.Equal(t, "snapshot", snap["type"])
		return conn
	}
	open := func() int {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.conns[presenceKey{tableID: tbl.ID, playerID: 101}]
	}

	first := dial()
	second := dial()
	require.Equal(t, 2, open())
	require.Equal(t, model.SeatStatusActive, seatStatus(t, db, tbl.ID, 101))

	first.Close()
	require.Eventually(t, func() bool { return open() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, model.SeatStatusActive, seatStatus(t, db, tbl.ID, 101))

	second.Close()
	require.Eventually(t, func() bool {
		var st model.Seat
		err := db.Where("table_id = ? AND player_id = ?", tbl.ID, 101).First(&st).Error
		return err == nil && st.Status == model.SeatStatusDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, open())
}
