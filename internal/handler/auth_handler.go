package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openfantasy/leagueserver/internal/service"
	"github.com/openfantasy/leagueserver/pkg/response"
	"github.com/openfantasy/leagueserver/pkg/validator"
)

type AuthHandler struct {
	authService service.AuthService
}

func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var input service.RegisterInput
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	// Optional avatar via multipart form
	var avatar *service.AvatarFile
	if file, err := c.FormFile("avatar"); err == nil && file != nil {
		f, err := file.Open()
		if err != nil {
			response.ResponseError(c, err)
			return
		}
		defer f.Close()
		avatar = &service.AvatarFile{Reader: f, FileName: file.Filename}
	}

	res, err := h.authService.Register(c.Request.Context(), input, avatar)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var input service.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	res, err := h.authService.Login(c.Request.Context(), input)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
