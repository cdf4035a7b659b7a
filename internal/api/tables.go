package api

import (
	"net/http"

	"pokertable-service/internal/middleware"
	"pokertable-service/internal/service/hand"
	"pokertable-service/internal/service/table"
	"pokertable-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type createTableBody struct {
	Name       string `json:"name" binding:"max=128"`
	Kind       string `json:"kind" binding:"required,oneof=club friends community"`
	ClubID     *int64 `json:"clubId,string"`
	MaxSeats   int    `json:"maxSeats" binding:"required,min=2,max=10"`
	SmallBlind int64  `json:"smallBlind" binding:"required,min=1"`
	BigBlind   int64  `json:"bigBlind" binding:"required,min=1"`
	Ante       int64  `json:"ante" binding:"min=0"`
	MinBuyIn   int64  `json:"minBuyIn" binding:"required,min=1"`
	MaxBuyIn   int64  `json:"maxBuyIn" binding:"required,min=1"`
}

type joinTableBody struct {
	SeatNumber *int  `json:"seatNumber" binding:"required,min=0"`
	BuyIn      int64 `json:"buyIn" binding:"required,min=1"`
}

type moderateBody struct {
	Action         string `json:"action" binding:"required"`
	TargetPlayerID string `json:"targetPlayerId"`
}

type actBody struct {
	Action          string `json:"action" binding:"required"`
	Amount          int64  `json:"amount" binding:"min=0"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

func (h *Handler) CreateTable(c *gin.Context) {
	var body createTableBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	tbl, err := h.services.Table.CreateTable(c.Request.Context(), middleware.PlayerID(c), table.CreateTableRequest{
		Name:       body.Name,
		Kind:       body.Kind,
		ClubID:     body.ClubID,
		MaxSeats:   body.MaxSeats,
		SmallBlind: body.SmallBlind,
		BigBlind:   body.BigBlind,
		Ante:       body.Ante,
		MinBuyIn:   body.MinBuyIn,
		MaxBuyIn:   body.MaxBuyIn,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	view, err := h.services.Table.GetTable(c.Request.Context(), tbl.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *Handler) GetTable(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.services.Table.GetTable(c.Request.Context(), tableID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *Handler) JoinTable(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body joinTableBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	seat, err := h.services.Table.Join(c.Request.Context(), table.JoinRequest{
		TableID:    tableID,
		PlayerID:   middleware.PlayerID(c),
		SeatNumber: *body.SeatNumber,
		BuyIn:      body.BuyIn,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"seatNumber":        seat.SeatNumber,
		"stack":             seat.Stack,
		"status":            seat.Status,
		"pendingActivation": seat.PendingActivation,
	})
}

func (h *Handler) LeaveTable(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	res, err := h.services.Table.Leave(c.Request.Context(), tableID, middleware.PlayerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) SitIn(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.services.Table.SitIn(c.Request.Context(), tableID, middleware.PlayerID(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMsg(c, gin.H{}, "seated in")
}

func (h *Handler) ModerateTable(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body moderateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	action, err := table.ParseModerateAction(body.Action)
	if err != nil {
		response.FromError(c, err)
		return
	}
	req := table.ModerateRequest{
		TableID: tableID,
		ActorID: middleware.PlayerID(c),
		Action:  action,
	}
	if action == table.ModerateKick {
		target, err := parseIDString(body.TargetPlayerID)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid targetPlayerId")
			return
		}
		req.TargetPlayerID = target
	}
	res, err := h.services.Table.Moderate(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) StartHand(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	playerID := middleware.PlayerID(c)
	if _, err := h.services.Table.SeatOf(c.Request.Context(), tableID, playerID); err != nil {
		response.FromError(c, err)
		return
	}
	res, err := h.services.Hand.StartHand(c.Request.Context(), tableID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	state, err := h.services.Hand.GetState(c.Request.Context(), tableID, res.State.HandID, playerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, state)
}

func (h *Handler) LatestHand(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	view, err := h.services.Hand.LatestHand(c.Request.Context(), tableID, middleware.PlayerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *Handler) GetHand(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	handID, ok := parseIDParam(c, "handId")
	if !ok {
		return
	}
	view, err := h.services.Hand.GetState(c.Request.Context(), tableID, handID, middleware.PlayerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *Handler) Act(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	handID, ok := parseIDParam(c, "handId")
	if !ok {
		return
	}
	var body actBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := hand.ParseActionKind(body.Action)
	if err != nil {
		response.FromError(c, err)
		return
	}
	res, err := h.services.Hand.Act(c.Request.Context(), hand.ActRequest{
		TableID:         tableID,
		HandID:          handID,
		PlayerID:        middleware.PlayerID(c),
		Intent:          hand.Intent{Kind: kind, Amount: body.Amount},
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) EnforceTimeout(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	handID, ok := parseIDParam(c, "handId")
	if !ok {
		return
	}
	res, err := h.services.Timeout.Enforce(c.Request.Context(), tableID, handID, middleware.PlayerID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}
