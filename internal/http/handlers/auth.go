package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type AccountService interface {
	RegisterUser(ctx context.Context, username, email, password string) (user.User, error)
	Authenticate(ctx context.Context, email, password string) (user.User, error)
}

type TokenIssuer interface {
	GenerateToken(userID, role string) (string, error)
}

type AuthHandler struct {
	accounts AccountService
	tokens   TokenIssuer
}

func NewAuthHandler(accounts AccountService, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{accounts: accounts, tokens: tokens}
}

type authResponse struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest
	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.accounts.RegisterUser(ctx.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.respondWithToken(ctx, http.StatusCreated, u)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.accounts.Authenticate(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.respondWithToken(ctx, http.StatusOK, u)
}

func (h *AuthHandler) respondWithToken(ctx *gin.Context, status int, u user.User) {
	token, err := h.tokens.GenerateToken(u.ID, u.Role)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(status, authResponse{Token: token, User: u})
}
