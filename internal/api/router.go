package api

import (
	"fmt"
	"net/http"
	"strconv"

	"pokertable-service/internal/middleware"
	"pokertable-service/internal/service"
	"pokertable-service/internal/service/profile"
	"pokertable-service/internal/ws"
	pkgAuth "pokertable-service/pkg/auth"
	"pokertable-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container, signer *pkgAuth.Signer, topicPrefix string) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Table, services.Hand, services.Subscriber, signer, topicPrefix)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired(signer))
	{
		v1.GET("/profile", handler.GetProfile)
		v1.PUT("/profile", handler.UpdateProfile)

		tables := v1.Group("/tables")
		{
			tables.POST("", handler.CreateTable)
			tables.GET("/:id", handler.GetTable)
			tables.POST("/:id/join", handler.JoinTable)
			tables.POST("/:id/leave", handler.LeaveTable)
			tables.POST("/:id/sit-in", handler.SitIn)
			tables.POST("/:id/moderate", handler.ModerateTable)

			tables.POST("/:id/hands/start", handler.StartHand)
			tables.GET("/:id/hands/latest", handler.LatestHand)
			tables.GET("/:id/hands/:handId", handler.GetHand)
			tables.POST("/:id/hands/:handId/act", handler.Act)
			tables.POST("/:id/hands/:handId/timeout", handler.EnforceTimeout)
		}

		tournaments := v1.Group("/tournaments")
		{
			tournaments.POST("", handler.CreateTournament)
			tournaments.GET("/:id", handler.GetTournament)
			tournaments.POST("/:id/register", handler.RegisterTournament)
			tournaments.POST("/:id/start", handler.StartTournament)
			tournaments.POST("/:id/eliminate", handler.EliminatePlayer)
			tournaments.GET("/:id/standings", handler.Standings)
		}
	}

	r.GET("/ws/tables/:tableId", wsHandler.HandleTableWS)
}

type updateProfileBody struct {
	Nickname *string `json:"nickname" binding:"omitempty,max=32"`
	Avatar   *string `json:"avatar" binding:"omitempty,max=512"`
}

func (h *Handler) GetProfile(c *gin.Context) {
	playerID := middleware.PlayerID(c)
	user, err := h.services.Profile.GetProfile(c.Request.Context(), playerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if user == nil {
		response.Success(c, profile.Profile{PlayerID: playerID, Nickname: profile.DefaultNickname})
		return
	}
	response.Success(c, user)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var body updateProfileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.services.Profile.Upsert(c.Request.Context(), middleware.PlayerID(c), profile.UpsertRequest{
		Nickname: body.Nickname,
		Avatar:   body.Avatar,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, updated)
}

func parseIDParam(c *gin.Context, key string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(key), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
		return 0, false
	}
	return id, true
}

// parseIDString accepts ids sent as JSON strings, matching how they are
// rendered in responses.
func parseIDString(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
