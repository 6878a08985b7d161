package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/service"
	"github.com/openfantasy/leagueserver/pkg/apperror"
	"github.com/openfantasy/leagueserver/pkg/response"
	"github.com/openfantasy/leagueserver/pkg/validator"
)

type LeagueHandler struct {
	leagueService service.LeagueService
}

func NewLeagueHandler(leagueService service.LeagueService) *LeagueHandler {
	return &LeagueHandler{leagueService: leagueService}
}

func (h *LeagueHandler) CreateLeague(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var input service.CreateLeagueInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	league, err := h.leagueService.Create(c.Request.Context(), userID, input)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": league})
}

func (h *LeagueHandler) JoinLeague(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var input service.JoinLeagueInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	membership, err := h.leagueService.Join(c.Request.Context(), userID, input)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": membership})
}

// FinalizeLeague closes out a season: pays the prize pool to the standings
// winner and marks the league FINALIZED. Admin only.
func (h *LeagueHandler) FinalizeLeague(c *gin.Context) {
	leagueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ResponseError(c, apperror.Validation("invalid league id"))
		return
	}

	league, err := h.leagueService.Finalize(c.Request.Context(), leagueID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": league})
}

// MyLeagues feeds the dashboard: memberships partitioned into active and
// completed plus the distinct active-league count.
func (h *LeagueHandler) MyLeagues(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	res, err := h.leagueService.MyLeagues(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}
