package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/integrity"
	"github.com/geocoder89/placehunt/internal/utils"
	"github.com/gin-gonic/gin"
)

type PlacesService interface {
	CreatePlace(ctx context.Context, in integrity.PlaceInput, caller authz.Identity) (place.Place, error)
	GetPlace(ctx context.Context, id string) (integrity.PlaceView, error)
	ListPlaces(ctx context.Context, filter place.ListFilter) (integrity.PlacePage, error)
	UpdateEntity(ctx context.Context, kind integrity.Kind, id string, fields map[string]any, caller authz.Identity) (any, error)
	DeletePlace(ctx context.Context, id string, caller authz.Identity) error
}

type PlacesHandler struct {
	places PlacesService
}

func NewPlacesHandler(places PlacesService) *PlacesHandler {
	return &PlacesHandler{places: places}
}

const idempotencyHeader = "Idempotency-Key"

func (h *PlacesHandler) CreatePlace(ctx *gin.Context) {
	var req place.CreatePlaceRequest
	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.places.CreatePlace(ctx.Request.Context(), integrity.PlaceInput{
		ID:          ctx.GetHeader(idempotencyHeader),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
	}, caller(ctx))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Header("Location", "/places/"+p.ID)
	ctx.JSON(http.StatusCreated, p)
}

func (h *PlacesHandler) GetPlace(ctx *gin.Context) {
	v, err := h.places.GetPlace(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, v)
}

// ListPlaces pages with ?limit=&cursor=; nextCursor is set while more remain.
func (h *PlacesHandler) ListPlaces(ctx *gin.Context) {
	var filter place.ListFilter

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondBadRequest(ctx, "Invalid query", gin.H{"field": "limit", "rule": "min", "param": "1"})
			return
		}
		filter.Limit = n
	}

	if raw := ctx.Query("cursor"); raw != "" {
		c, err := utils.DecodePlaceCursor(raw)
		if err != nil {
			RespondBadRequest(ctx, "Invalid query", gin.H{"field": "cursor", "rule": "cursor"})
			return
		}
		filter.AfterCreatedAt, filter.AfterID = c.CreatedAt, c.ID
	}

	page, err := h.places.ListPlaces(ctx.Request.Context(), filter)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	resp := gin.H{"items": page.Items, "count": len(page.Items)}
	if page.HasMore && len(page.Items) > 0 {
		last := page.Items[len(page.Items)-1]
		next, err := utils.EncodePlaceCursor(last.CreatedAt, last.ID)
		if err != nil {
			RespondAppError(ctx, err)
			return
		}
		resp["nextCursor"] = next
	}

	ctx.JSON(http.StatusOK, resp)
}

func (h *PlacesHandler) UpdatePlace(ctx *gin.Context) {
	fields, ok := BindFields(ctx)
	if !ok {
		return
	}

	updated, err := h.places.UpdateEntity(ctx.Request.Context(), integrity.KindPlace, ctx.Param("id"), fields, caller(ctx))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, updated)
}

func (h *PlacesHandler) DeletePlace(ctx *gin.Context) {
	if err := h.places.DeletePlace(ctx.Request.Context(), ctx.Param("id"), caller(ctx)); err != nil {
		RespondAppError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
