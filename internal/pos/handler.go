package pos

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

// Handler wires HTTP endpoints for the POS module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs POS handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers POS routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleCreateSale)
	r.Get("/sales", h.handleListSales)
	r.Get("/sales/{saleID}", h.handleGetSale)
}

type createSaleRequest struct {
	BranchID int64             `json:"branch_id" validate:"required,gt=0"`
	Items    []saleItemRequest `json:"items" validate:"required,min=1,dive"`
}

type saleItemRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Qty         int64  `json:"qty" validate:"required,gt=0"`
	BatchNumber string `json:"batch_number"`
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	input := CreateSaleInput{BranchID: req.BranchID, ActorID: actor.ID}
	for _, item := range req.Items {
		input.Items = append(input.Items, SaleItemInput{ProductID: item.ProductID, Qty: item.Qty, BatchNumber: item.BatchNumber})
	}

	result, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "saleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sale id must be a UUID")
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SaleFilter{}
	if v := q.Get("branch_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branch_id must be numeric")
			return
		}
		filter.BranchID = id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = t.AddDate(0, 0, 1)
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	sales, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sales)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSaleNotFound),
		errors.Is(err, masterdata.ErrBranchNotFound),
		errors.Is(err, masterdata.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock), errors.Is(err, inventory.ErrNoActiveInventory):
		httpx.Problem(w, http.StatusConflict, "Stock Conflict", err.Error())
	case errors.Is(err, shared.ErrConcurrentModification):
		w.Header().Set("Retry-After", "1")
		httpx.Problem(w, http.StatusServiceUnavailable, "Concurrent Modification", "the sale conflicted with another movement, retry")
	case errors.Is(err, ErrEmptySale), errors.Is(err, ErrProductInactive), errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("pos request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		httpx.RespondError(w, err)
	}
}
