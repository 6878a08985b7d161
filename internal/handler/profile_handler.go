package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openfantasy/leagueserver/internal/repository"
	"github.com/openfantasy/leagueserver/pkg/response"
)

type ProfileHandler struct {
	userRepo repository.UserRepository
}

func NewProfileHandler(userRepo repository.UserRepository) *ProfileHandler {
	return &ProfileHandler{userRepo: userRepo}
}

func (h *ProfileHandler) GetCurrentProfile(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	user, err := h.userRepo.FindByID(c.Request.Context(), userID.String())
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	user.PasswordHash = ""
	c.JSON(http.StatusOK, gin.H{"data": user})
}
