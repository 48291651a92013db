package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/platform/httpx"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inventory/receipts", h.handleReceive)
	r.Post("/inventory/adjustments", h.handleAdjust)
	r.Get("/inventory/branches/{branchID}/products/{productID}", h.handleGetLine)
	r.Get("/inventory/branches/{branchID}/products/{productID}/batches", h.handleListBatches)
	r.Put("/inventory/batches/{batchID}/status", h.handleBatchStatus)
	r.Get("/inventory/low-stock", h.handleLowStock)
	r.Post("/inventory/reconcile", h.handleReconcile)
}

type receiveRequest struct {
	BranchID    int64  `json:"branch_id" validate:"required,gt=0"`
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	BatchNumber string `json:"batch_number" validate:"required"`
	ExpiryDate  string `json:"expiry_date" validate:"required"`
	Qty         int64  `json:"qty" validate:"required,gt=0"`
	UnitCost    string `json:"unit_cost" validate:"required"`
}

type receiveResponse struct {
	Batch Batch         `json:"batch"`
	Line  InventoryLine `json:"line"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
		return
	}
	cost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a decimal")
		return
	}
	actor := shared.ActorFromContext(r.Context())

	batch, line, err := h.service.Receive(r.Context(), ReceiveInput{
		BranchID:    req.BranchID,
		ProductID:   req.ProductID,
		BatchNumber: req.BatchNumber,
		ExpiryDate:  expiry,
		Qty:         req.Qty,
		UnitCost:    cost,
		ActorID:     actor.ID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receiveResponse{Batch: batch, Line: line})
}

type adjustRequest struct {
	BranchID  int64  `json:"branch_id" validate:"required,gt=0"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Delta     int64  `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	line, err := h.service.Adjust(r.Context(), AdjustInput{
		BranchID:  req.BranchID,
		ProductID: req.ProductID,
		Delta:     req.Delta,
		Reason:    req.Reason,
		ActorID:   actor.ID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) handleGetLine(w http.ResponseWriter, r *http.Request) {
	branchID, productID, ok := lineParams(w, r)
	if !ok {
		return
	}
	line, err := h.service.GetLine(r.Context(), branchID, productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	branchID, productID, ok := lineParams(w, r)
	if !ok {
		return
	}
	batches, err := h.service.ListBatches(r.Context(), branchID, productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

type batchStatusRequest struct {
	BranchID  int64  `json:"branch_id" validate:"required,gt=0"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Status    string `json:"status" validate:"required"`
}

func (h *Handler) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "batch id must be numeric")
		return
	}
	var req batchStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	line, err := h.service.UpdateBatchStatus(r.Context(), req.BranchID, req.ProductID, batchID, BatchStatus(req.Status), actor.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.LowStock(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"lines_recomputed": count})
}

func lineParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	branchID, err := strconv.ParseInt(chi.URLParam(r, "branchID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch id must be numeric")
		return 0, 0, false
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product id must be numeric")
		return 0, 0, false
	}
	return branchID, productID, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, masterdata.ErrBranchNotFound), errors.Is(err, masterdata.ErrProductNotFound), errors.Is(err, ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrNoActiveInventory):
		httpx.Problem(w, http.StatusConflict, "Stock Conflict", err.Error())
	case errors.Is(err, shared.ErrConcurrentModification):
		w.Header().Set("Retry-After", "1")
		httpx.Problem(w, http.StatusServiceUnavailable, "Concurrent Modification", "the operation conflicted with another movement, retry")
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrReasonRequired), errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		httpx.RespondError(w, err)
	}
}
