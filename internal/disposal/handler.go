package disposal

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/platform/httpx"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

// Handler wires HTTP endpoints for the disposal module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sweeper  *Sweeper
	validate *validator.Validate
}

// NewHandler constructs disposal handler.
func NewHandler(logger *slog.Logger, service *Service, sweeper *Sweeper, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, sweeper: sweeper, validate: validate}
}

// MountRoutes registers disposal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/disposals", h.handleCreate)
	r.Get("/disposals", h.handleList)
	r.Get("/disposals/{disposalID}", h.handleGet)
	r.Get("/disposals/{disposalID}/history", h.handleHistory)
	r.Post("/disposals/{disposalID}/approve", h.handleApprove)
	r.Post("/disposals/{disposalID}/reject", h.handleReject)
	r.Post("/disposals/sweep", h.handleSweep)
}

type createRequest struct {
	BranchID int64               `json:"branch_id" validate:"required,gt=0"`
	Reason   string              `json:"reason" validate:"required"`
	Items    []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createItemRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	BatchNumber string `json:"batch_number" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	input := CreateInput{BranchID: req.BranchID, Reason: req.Reason, ActorID: actor.ID}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItemInput{ProductID: item.ProductID, BatchNumber: item.BatchNumber})
	}

	disposal, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, disposal)
}

type decisionRequest struct {
	Note string `json:"note"`
}

type approveResponse struct {
	Disposal  Disposal                     `json:"disposal"`
	Destroyed []inventory.BatchConsumption `json:"destroyed"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := disposalID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	actor := shared.ActorFromContext(r.Context())

	disposal, destroyed, err := h.service.Approve(r.Context(), id, actor.ID, req.Note)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, approveResponse{Disposal: disposal, Destroyed: destroyed})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := disposalID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	actor := shared.ActorFromContext(r.Context())

	disposal, err := h.service.Reject(r.Context(), id, actor.ID, req.Note)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, disposal)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := disposalID(w, r)
	if !ok {
		return
	}
	disposal, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, disposal)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := disposalID(w, r)
	if !ok {
		return
	}
	history, err := h.service.History(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{Status: Status(q.Get("status"))}
	if v := q.Get("branch_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id must be numeric")
			return
		}
		filter.BranchID = id
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	disposals, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, disposals)
}

// handleSweep triggers one sweep run on demand; the scheduled run goes
// through the worker instead.
func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Run(r.Context(), time.Now().UTC())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func disposalID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "disposalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "disposal id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, masterdata.ErrBranchNotFound),
		errors.Is(err, masterdata.ErrProductNotFound),
		errors.Is(err, inventory.ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrBatchAlreadyRequested):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrConcurrentModification):
		w.Header().Set("Retry-After", "1")
		httpx.Problem(w, http.StatusServiceUnavailable, "Concurrent Modification", "the disposal conflicted with another movement, retry")
	case errors.Is(err, ErrReasonRequired), errors.Is(err, ErrNoBatches):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("disposal request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		httpx.RespondError(w, err)
	}
}
