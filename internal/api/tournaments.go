package api

import (
	"net/http"

	"pokertable-service/internal/middleware"
	"pokertable-service/internal/service/tournament"
	"pokertable-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type payoutTierBody struct {
	Position   int   `json:"position" binding:"required,min=1"`
	Percentage int64 `json:"percentage" binding:"required,min=1,max=100"`
}

type createTournamentBody struct {
	Name              string           `json:"name" binding:"max=128"`
	StartingStack     int64            `json:"startingStack" binding:"required,min=1"`
	PlayersPerTable   int              `json:"playersPerTable" binding:"required,min=2,max=10"`
	MaxPlayers        int              `json:"maxPlayers" binding:"required,min=2"`
	SmallBlind        int64            `json:"smallBlind" binding:"required,min=1"`
	BigBlind          int64            `json:"bigBlind" binding:"required,min=1"`
	Ante              int64            `json:"ante" binding:"min=0"`
	BlindLevelMinutes int              `json:"blindLevelMinutes" binding:"min=0"`
	Payouts           []payoutTierBody `json:"payouts" binding:"dive"`
}

type eliminateBody struct {
	PlayerID string `json:"playerId" binding:"required"`
}

func (h *Handler) CreateTournament(c *gin.Context) {
	var body createTournamentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	tiers := make([]tournament.PayoutTier, 0, len(body.Payouts))
	for _, p := range body.Payouts {
		tiers = append(tiers, tournament.PayoutTier{Position: p.Position, Percentage: p.Percentage})
	}
	t, err := h.services.Tournament.Create(c.Request.Context(), middleware.PlayerID(c), tournament.CreateRequest{
		Name:              body.Name,
		StartingStack:     body.StartingStack,
		PlayersPerTable:   body.PlayersPerTable,
		MaxPlayers:        body.MaxPlayers,
		SmallBlind:        body.SmallBlind,
		BigBlind:          body.BigBlind,
		Ante:              body.Ante,
		BlindLevelMinutes: body.BlindLevelMinutes,
		Payouts:           tiers,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, t)
}

func (h *Handler) GetTournament(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	t, err := h.services.Tournament.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, t)
}

func (h *Handler) RegisterTournament(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	tp, err := h.services.Tournament.Register(c.Request.Context(), id, middleware.PlayerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"status": tp.Status})
}

func (h *Handler) StartTournament(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	res, err := h.services.Tournament.Start(c.Request.Context(), id, middleware.PlayerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// EliminatePlayer is the operator path; busted players are normally
// eliminated when their hand settles.
func (h *Handler) EliminatePlayer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body eliminateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	playerID, err := parseIDString(body.PlayerID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.services.Tournament.Eliminate(c.Request.Context(), tournament.EliminateRequest{
		TournamentID: id,
		ActorID:      middleware.PlayerID(c),
		PlayerID:     playerID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) Standings(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	standings, err := h.services.Tournament.Standings(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"items": standings})
}
