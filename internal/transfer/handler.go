package transfer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/platform/httpx"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

// Handler wires HTTP endpoints for the transfer module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs transfer handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transfers", h.handleCreate)
	r.Get("/transfers", h.handleList)
	r.Get("/transfers/{transferID}", h.handleGet)
	r.Get("/transfers/{transferID}/history", h.handleHistory)
	r.Post("/transfers/{transferID}/approve", h.handleApprove)
	r.Post("/transfers/{transferID}/reject", h.handleReject)
}

type createRequest struct {
	SourceBranchID int64               `json:"source_branch_id" validate:"required,gt=0"`
	TargetBranchID int64               `json:"target_branch_id" validate:"required,gt=0"`
	Note           string              `json:"note"`
	Items          []createItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createItemRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Qty         int64  `json:"qty" validate:"required,gt=0"`
	BatchNumber string `json:"batch_number"`
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

	input := CreateInput{
		SourceBranchID: req.SourceBranchID,
		TargetBranchID: req.TargetBranchID,
		Note:           req.Note,
		ActorID:        actor.ID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItemInput{
			ProductID:   item.ProductID,
			Qty:         item.Qty,
			BatchNumber: item.BatchNumber,
		})
	}

	transfer, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

type decisionRequest struct {
	Note string `json:"note"`
}

type approveResponse struct {
	Transfer Transfer                    `json:"transfer"`
	Moved    []inventory.ItemConsumption `json:"moved"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	actor := shared.ActorFromContext(r.Context())

	transfer, moved, err := h.service.Approve(r.Context(), id, actor.ID, req.Note)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, approveResponse{Transfer: transfer, Moved: moved})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	actor := shared.ActorFromContext(r.Context())

	transfer, err := h.service.Reject(r.Context(), id, actor.ID, req.Note)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
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

	transfers, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfers)
}

func transferID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "transferID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transfer id must be a UUID")
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
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock), errors.Is(err, inventory.ErrNoActiveInventory):
		httpx.Problem(w, http.StatusConflict, "Stock Conflict", err.Error())
	case errors.Is(err, shared.ErrConcurrentModification):
		w.Header().Set("Retry-After", "1")
		httpx.Problem(w, http.StatusServiceUnavailable, "Concurrent Modification", "the transfer conflicted with another movement, retry")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrSameBranch), errors.Is(err, ErrEmptyTransfer), errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("transfer request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		httpx.RespondError(w, err)
	}
}
