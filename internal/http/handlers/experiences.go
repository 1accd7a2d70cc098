package handlers

import (
	"context"
	"net/http"

	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/integrity"
	"github.com/gin-gonic/gin"
)

type ExperiencesService interface {
	CreateExperience(ctx context.Context, in integrity.ExperienceInput, caller authz.Identity) (experience.Experience, error)
	GetExperience(ctx context.Context, id string) (integrity.ExperienceView, error)
	ListExperiences(ctx context.Context, placeID string) ([]integrity.ExperienceView, error)
	UpdateEntity(ctx context.Context, kind integrity.Kind, id string, fields map[string]any, caller authz.Identity) (any, error)
	DeleteExperience(ctx context.Context, id string, caller authz.Identity) error
}

type ExperiencesHandler struct {
	exps ExperiencesService
}

func NewExperiencesHandler(exps ExperiencesService) *ExperiencesHandler {
	return &ExperiencesHandler{exps: exps}
}

func (h *ExperiencesHandler) CreateExperience(ctx *gin.Context) {
	var req experience.CreateExperienceRequest
	if !BindJSON(ctx, &req) {
		return
	}

	x, err := h.exps.CreateExperience(ctx.Request.Context(), integrity.ExperienceInput{
		ID:       ctx.GetHeader(idempotencyHeader),
		Text:     req.Text,
		Type:     req.Type,
		Solution: req.Solution,
		PlaceID:  req.PlaceID,
	}, caller(ctx))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Header("Location", "/experiences/"+x.ID)
	ctx.JSON(http.StatusCreated, x)
}

func (h *ExperiencesHandler) GetExperience(ctx *gin.Context) {
	v, err := h.exps.GetExperience(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, v)
}

// ListExperiences accepts ?placeId= to narrow to one place.
func (h *ExperiencesHandler) ListExperiences(ctx *gin.Context) {
	views, err := h.exps.ListExperiences(ctx.Request.Context(), ctx.Query("placeId"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": views, "count": len(views)})
}

func (h *ExperiencesHandler) UpdateExperience(ctx *gin.Context) {
	fields, ok := BindFields(ctx)
	if !ok {
		return
	}

	updated, err := h.exps.UpdateEntity(ctx.Request.Context(), integrity.KindExperience, ctx.Param("id"), fields, caller(ctx))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, updated)
}

func (h *ExperiencesHandler) DeleteExperience(ctx *gin.Context) {
	if err := h.exps.DeleteExperience(ctx.Request.Context(), ctx.Param("id"), caller(ctx)); err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
