package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/operatornetwork/opnet/lifecycle"
	"github.com/operatornetwork/opnet/models"
	"github.com/operatornetwork/opnet/realtime"
	"github.com/operatornetwork/opnet/store"
)

// Handler carries the service dependencies for the API routes.
type Handler struct {
	Engine *lifecycle.Engine
	Store  store.Store
	Log    *logrus.Logger
}

// RegisterRoutes attaches all API routes to the Echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/operations", h.handleListOperations)
	e.GET("/operations/stream", h.handleStreamOperations)
	e.GET("/operations/:id", h.handleGetOperation)
	e.POST("/operations/:id/claim", h.handleClaim)
	e.POST("/operations/:id/start", h.handleStart)
	e.POST("/operations/:id/submit", h.handleSubmit)
	e.POST("/operations/:id/verify", h.handleVerify)
	e.GET("/operators/:id", h.handleGetOperator)
}

// errorResponse is the JSON payload for every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps the lifecycle taxonomy onto HTTP status codes:
// NotFound 404, InvalidTransition and AlreadyAssigned 409, Forbidden 403,
// Transport 502. Anything unrecognized is a 500.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{err.Error(), "not_found"})
	case errors.Is(err, lifecycle.ErrAlreadyAssigned):
		return c.JSON(http.StatusConflict, errorResponse{err.Error(), "already_assigned"})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, errorResponse{err.Error(), "invalid_transition"})
	case errors.Is(err, lifecycle.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorResponse{err.Error(), "forbidden"})
	case errors.Is(err, lifecycle.ErrTransport):
		return c.JSON(http.StatusBadGateway, errorResponse{err.Error(), "transport"})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{err.Error(), "internal"})
	}
}

type actorRequest struct {
	OperatorID string `json:"operatorId"`
}

type submitRequest struct {
	OperatorID string `json:"operatorId"`
	Notes      string `json:"notes,omitempty"`
}

type verifyRequest struct {
	VerifierID string `json:"verifierId"`
	Approved   bool   `json:"approved"`
	Notes      string `json:"notes,omitempty"`
}

func (h *Handler) handleClaim(c echo.Context) error {
	var req actorRequest
	if err := c.Bind(&req); err != nil || req.OperatorID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{"operatorId is required", "bad_request"})
	}
	op, err := h.Engine.Claim(c.Request().Context(), c.Param("id"), req.OperatorID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, op)
}

func (h *Handler) handleStart(c echo.Context) error {
	var req actorRequest
	if err := c.Bind(&req); err != nil || req.OperatorID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{"operatorId is required", "bad_request"})
	}
	op, err := h.Engine.Start(c.Request().Context(), c.Param("id"), req.OperatorID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, op)
}

func (h *Handler) handleSubmit(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil || req.OperatorID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{"operatorId is required", "bad_request"})
	}
	op, err := h.Engine.Submit(c.Request().Context(), c.Param("id"), req.OperatorID, req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, op)
}

func (h *Handler) handleVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil || req.VerifierID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{"verifierId is required", "bad_request"})
	}
	op, err := h.Engine.Verify(c.Request().Context(), c.Param("id"), req.VerifierID, req.Approved, req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, op)
}

func (h *Handler) handleGetOperation(c echo.Context) error {
	op, err := h.Engine.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, op)
}

func (h *Handler) handleListOperations(c echo.Context) error {
	q := store.Query{Filters: map[string]interface{}{}, SortBy: "createdAt", Descending: true}
	if status := c.QueryParam("status"); status != "" {
		q.Filters["status"] = status
	}
	if machine := c.QueryParam("machineId"); machine != "" {
		q.Filters["machineId"] = machine
	}

	docs, err := h.Store.Query(c.Request().Context(), store.CollectionOperations, q)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse{err.Error(), "transport"})
	}

	ops := make([]models.Operation, 0, len(docs))
	for _, doc := range docs {
		var op models.Operation
		if err := store.Decode(doc, &op); err != nil {
			h.Log.WithError(err).Warn("skipping undecodable operation document")
			continue
		}
		ops = append(ops, op)
	}
	return c.JSON(http.StatusOK, ops)
}

func (h *Handler) handleGetOperator(c echo.Context) error {
	doc, err := h.Store.Get(c.Request().Context(), store.CollectionOperators, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{"operator not found", "not_found"})
		}
		return c.JSON(http.StatusBadGateway, errorResponse{err.Error(), "transport"})
	}

	var profile models.OperatorProfile
	if err := store.Decode(doc, &profile); err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{err.Error(), "internal"})
	}
	return c.JSON(http.StatusOK, profile)
}

// handleStreamOperations serves a server-sent-events stream of the
// operations collection. Each live subscription is owned by a
// per-connection realtime manager, so a dropped connection tears the
// store subscription down exactly once.
func (h *Handler) handleStreamOperations(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	q := store.Query{Filters: map[string]interface{}{}, SortBy: "createdAt", Descending: true}
	if status := c.QueryParam("status"); status != "" {
		q.Filters["status"] = status
	}

	manager := realtime.NewManager()
	defer func() {
		if err := manager.DisposeAll(); err != nil {
			h.Log.WithError(err).Error("failed to release stream subscriptions")
		}
	}()

	events := make(chan []store.Document, 8)
	feedErrs := make(chan error, 1)

	ctx := c.Request().Context()
	unsubscribe, err := h.Store.Subscribe(ctx, store.CollectionOperations, q,
		func(docs []store.Document) {
			select {
			case events <- docs:
			default:
				// Slow consumer; drop the frame, the next change
				// carries the full result set anyway.
			}
		},
		func(err error) {
			select {
			case feedErrs <- err:
			default:
			}
		},
	)
	if err != nil {
		return writeError(c, fmt.Errorf("%w: %v", lifecycle.ErrTransport, err))
	}
	manager.Add(unsubscribe)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-feedErrs:
			h.Log.WithError(err).Error("operation stream feed error")
			return nil
		case docs := <-events:
			payload, err := json.Marshal(docs)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
