package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type UsersService interface {
	ListUsers(ctx context.Context, caller authz.Identity) ([]user.User, error)
	SetUserRole(ctx context.Context, id, role string, caller authz.Identity) (user.User, error)
	DeleteUser(ctx context.Context, id string, caller authz.Identity) error
}

type UsersHandler struct {
	users UsersService
}

func NewUsersHandler(users UsersService) *UsersHandler {
	return &UsersHandler{users: users}
}

func (h *UsersHandler) ListUsers(ctx *gin.Context) {
	us, err := h.users.ListUsers(ctx.Request.Context(), caller(ctx))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": us, "count": len(us)})
}

func (h *UsersHandler) SetRole(ctx *gin.Context) {
	var req user.SetRoleRequest
	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.SetUserRole(ctx.Request.Context(), ctx.Param("id"), req.Role, caller(ctx))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) DeleteUser(ctx *gin.Context) {
	if err := h.users.DeleteUser(ctx.Request.Context(), ctx.Param("id"), caller(ctx)); err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
