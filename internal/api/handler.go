package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"water-dispatch-backend/internal/dispatch"
	"water-dispatch-backend/internal/geo"
	"water-dispatch-backend/internal/mw"
	"water-dispatch-backend/internal/requestsvc"
	"water-dispatch-backend/internal/store"
)

// RequestService is the part of the request service the API proxies.
type RequestService interface {
	ListByRequester(ctx context.Context, requesterID string) ([]requestsvc.EmergencyRequest, error)
	UpdateStatus(ctx context.Context, id string, status requestsvc.Status) (*requestsvc.EmergencyRequest, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	hub      *dispatch.Hub
	store    store.Store
	requests RequestService
	catalog  *geo.Catalog
	webpush  *webpush.Options
	log      *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(hub *dispatch.Hub, s store.Store, requests RequestService, catalog *geo.Catalog, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub:      hub,
		store:    s,
		requests: requests,
		catalog:  catalog,
		webpush:  webpushOptions,
		log:      log,
	}
}

func requester(c *gin.Context) dispatch.Requester {
	return dispatch.Requester{ID: mw.UserID(c), Label: mw.UserName(c)}
}

// monitor mounts the caller's monitor on first use.
func (h *Handler) monitor(c *gin.Context) *dispatch.Monitor {
	return h.hub.Mount(c.Request.Context(), requester(c))
}

// writeError maps domain and upstream errors onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error, extra gin.H) {
	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}

	var (
		validation *dispatch.ValidationError
		upstream   *requestsvc.StatusError
	)
	switch {
	case errors.As(err, &validation):
		body["fields"] = validation.Fields
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, dispatch.ErrNotMounted), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, body)
	case errors.As(err, &upstream):
		body["upstreamStatus"] = upstream.StatusCode
		c.JSON(http.StatusBadGateway, body)
	default:
		h.log.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, body)
	}
}
