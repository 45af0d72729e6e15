package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
)

type HTTPHandler struct {
	orders  *service.OrderService
	catalog *service.CatalogService
}

func NewHTTPHandler(orders *service.OrderService, catalog *service.CatalogService) *HTTPHandler {
	return &HTTPHandler{orders: orders, catalog: catalog}
}

// Router wires the API surface onto a chi router.
func (h *HTTPHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}/status", h.updateOrderStatus)
		r.Post("/orders/{id}/fulfill", h.fulfillOrder)

		r.Get("/products", h.listProducts)
		r.Post("/products", h.createProduct)
		r.Get("/products/low-stock", h.listLowStockProducts)
		r.Get("/products/{id}", h.getProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Put("/products/{id}/stock", h.setStock)

		r.Get("/categories", h.listCategories)
		r.Post("/categories", h.createCategory)

		r.Get("/users/{id}/orders", h.listUserOrders)
		r.Get("/users/username/{username}", h.getUserByUsername)
	})
	r.Get("/health", h.healthCheck)

	return r
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	UserID string             `json:"user_id"`
	Items  []orderLineRequest `json:"items"`
}

type orderResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type orderItemResponse struct {
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
}

type receiptResponse struct {
	Order    orderResponse       `json:"order"`
	Items    []orderItemResponse `json:"items,omitempty"`
	Subtotal decimal.Decimal     `json:"subtotal"`
	Tax      decimal.Decimal     `json:"tax"`
	Shipping decimal.Decimal     `json:"shipping"`
}

func (h *HTTPHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ValidationError("invalid request body"))
		return
	}

	lines := make([]domain.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	receipt, err := h.orders.CreateOrder(r.Context(), req.UserID, lines)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReceiptResponse(receipt, false))
}

func (h *HTTPHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(receipt, true))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *HTTPHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ValidationError("invalid request body"))
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.OrderStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Fulfill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type productResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Version       int64           `json:"version"`
	CategoryID    string          `json:"category_id"`
	LowStockAlert bool            `json:"low_stock_alert"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (h *HTTPHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *HTTPHandler) listLowStockProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListLowStockProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *HTTPHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

type createProductRequest struct {
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CategoryID    string          `json:"category_id"`
}

func (h *HTTPHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ValidationError("invalid request body"))
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), domain.Product{
		Name:          req.Name,
		SKU:           req.SKU,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		CategoryID:    req.CategoryID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

type updateProductRequest struct {
	Name          *string          `json:"name"`
	SKU           *string          `json:"sku"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity"`
	CategoryID    *string          `json:"category_id"`
}

func (h *HTTPHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ValidationError("invalid request body"))
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), service.ProductUpdate{
		Name:          req.Name,
		SKU:           req.SKU,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		CategoryID:    req.CategoryID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

type setStockRequest struct {
	StockQuantity *int `json:"stock_quantity"`
}

func (h *HTTPHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StockQuantity == nil {
		writeError(w, domain.ValidationError("stock_quantity is required"))
		return
	}

	product, err := h.catalog.SetStock(r.Context(), chi.URLParam(r, "id"), *req.StockQuantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

type categoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *HTTPHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name, Description: c.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *HTTPHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ValidationError("invalid request body"))
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), domain.Category{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name, Description: category.Description})
}

func (h *HTTPHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListUserOrders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (h *HTTPHandler) getUserByUsername(w http.ResponseWriter, r *http.Request) {
	user, err := h.catalog.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}

func (h *HTTPHandler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toReceiptResponse(receipt service.OrderReceipt, includeItems bool) receiptResponse {
	resp := receiptResponse{
		Order:    toOrderResponse(receipt.Order),
		Subtotal: receipt.Breakdown.Subtotal,
		Tax:      receipt.Breakdown.Tax,
		Shipping: receipt.Breakdown.Shipping,
	}
	if includeItems {
		resp.Items = make([]orderItemResponse, 0, len(receipt.Items))
		for _, item := range receipt.Items {
			resp.Items = append(resp.Items, orderItemResponse{
				ProductID:   item.ProductID,
				Quantity:    item.Quantity,
				PriceAtTime: item.PriceAtTime,
			})
		}
	}
	return resp
}

func toProductResponse(p service.ProductSummary) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		SKU:           p.SKU,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		Version:       p.Version,
		CategoryID:    p.CategoryID,
		LowStockAlert: p.LowStockAlert,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toProductResponses(products []service.ProductSummary) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

type errorResponse struct {
	Message string `json:"message"`
}

// writeError maps the domain error taxonomy onto HTTP statuses; only the
// version conflict (409) is safe to retry as-is.
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr   domain.ValidationError
		insufficientErr domain.InsufficientStockError
		transitionErr   domain.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &insufficientErr),
		errors.As(err, &transitionErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
