package transport

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shelfdesk/internal/domain"
	"shelfdesk/internal/middleware"
	"shelfdesk/internal/service"
	"shelfdesk/internal/view"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProductRequest is the full product form used by create and replace
type ProductRequest struct {
	Title       string         `json:"title" validate:"required,min=3"`
	Description string         `json:"description" validate:"required,min=10"`
	Price       *domain.Number `json:"price" validate:"required,gte=0"`
	Stock       *domain.Number `json:"stock" validate:"required,gte=0"`
	Brand       string         `json:"brand"`
	Category    string         `json:"category"`
	Thumbnail   string         `json:"thumbnail" validate:"omitempty,url"`
	Tags        []string       `json:"tags,omitempty"`
	Images      []string       `json:"images,omitempty" validate:"omitempty,dive,url"`
}

// ProductPatchRequest carries only the fields being edited
type ProductPatchRequest struct {
	Title       *string        `json:"title" validate:"omitempty,min=3"`
	Description *string        `json:"description" validate:"omitempty,min=10"`
	Price       *domain.Number `json:"price" validate:"omitempty,gte=0"`
	Stock       *domain.Number `json:"stock" validate:"omitempty,gte=0"`
	Brand       *string        `json:"brand"`
	Category    *string        `json:"category"`
	Thumbnail   *string        `json:"thumbnail" validate:"omitempty,url"`
	Tags        []string       `json:"tags,omitempty"`
	Images      []string       `json:"images,omitempty" validate:"omitempty,dive,url"`
}

// ListResponse is the composed view of the catalog
type ListResponse struct {
	Products   []domain.Product `json:"products"`
	Total      int              `json:"total"`
	Categories []string         `json:"categories"`
	Stats      domain.Stats     `json:"stats"`
	Loading    bool             `json:"loading"`
	Error      string           `json:"error,omitempty"`
	LastFetch  *time.Time       `json:"lastFetch,omitempty"`
}

// StateResponse reports the catalog load status
type StateResponse struct {
	Count     int        `json:"count"`
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
	LastFetch *time.Time `json:"lastFetch,omitempty"`
}

// ProductHandler handles HTTP requests for catalog operations
type ProductHandler struct {
	store  service.CatalogStore
	logger *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(store service.CatalogStore, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers all product routes behind the session guard
func (h *ProductHandler) RegisterRoutes(r chi.Router, requireSession func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Use(requireSession)

		r.Get("/", h.List)
		r.Post("/", h.Create)

		r.Get("/search", h.Search)
		r.Get("/categories", h.Categories)
		r.Get("/categories/{category}", h.ByCategory)
		r.Get("/stats", h.Stats)
		r.Get("/state", h.State)

		r.Post("/fetch", h.Fetch)
		r.Post("/reset", h.Reset)
		r.Delete("/error", h.ClearError)

		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Replace)
		r.Patch("/{id}", h.Patch)
		r.Delete("/{id}", h.Delete)
	})
}

// List returns the filtered and sorted view of the catalog.
// Query params: search, category, sort.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortKey, err := view.ParseSortKey(q.Get("sort"))
	if err != nil {
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, err.Error(), map[string]any{
			"allowed": view.SortKeys,
		})
		return
	}

	state := h.store.State()
	products := view.Compose(state.Products, view.Query{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Sort:     sortKey,
	})

	middleware.RespondWithJSON(w, http.StatusOK, ListResponse{
		Products:   products,
		Total:      len(state.Products),
		Categories: h.store.Categories(),
		Stats:      h.store.Stats(),
		Loading:    state.Loading,
		Error:      state.Error,
		LastFetch:  state.LastFetch,
	})
}

// Search matches q against the text fields of every product
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.store.SearchProducts(r.URL.Query().Get("q")))
}

// Categories lists the distinct categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.store.Categories())
}

// ByCategory lists the products of one category
func (h *ProductHandler) ByCategory(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.store.FilterByCategory(chi.URLParam(r, "category")))
}

// Stats returns the catalog aggregates
func (h *ProductHandler) Stats(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.store.Stats())
}

// State returns the load status
func (h *ProductHandler) State(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.stateResponse())
}

// Fetch loads the remote catalog; ?force=true reloads a populated collection
func (h *ProductHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	h.respondLoad(w, "Catalog fetch failed", h.store.FetchProducts(r.Context(), force))
}

// Reset discards local edits and reloads the remote catalog
func (h *ProductHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.respondLoad(w, "Catalog reset failed", h.store.ResetToAPI(r.Context()))
}

// ClearError dismisses the last load error
func (h *ProductHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	h.store.ClearError()
	middleware.RespondNoContent(w)
}

// Create adds a locally authored product
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	product, err := h.store.AddProduct(r.Context(), req.Fields())
	if err != nil {
		h.logger.Error("Failed to create product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to save product")
		return
	}

	h.logger.Info("Product created", zap.String("product_id", product.ID.String()))
	w.Header().Set("Location", "/api/products/"+product.ID.String())
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// Get returns one product
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, ok := h.store.GetProductByID(chi.URLParam(r, "id"))
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, service.ErrProductNotFound.Error())
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Replace submits the full edit form
func (h *ProductHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	h.update(w, r, req.Fields())
}

// Patch edits only the supplied fields
func (h *ProductHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var req ProductPatchRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}
	h.update(w, r, req.Fields())
}

// Delete removes a product; unknown ids are not an error
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteProduct(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete product", zap.String("product_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}
	middleware.RespondNoContent(w)
}

func (h *ProductHandler) update(w http.ResponseWriter, r *http.Request, fields domain.ProductFields) {
	id := chi.URLParam(r, "id")
	product, err := h.store.UpdateProduct(r.Context(), id, fields)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, service.ErrProductNotFound.Error())
			return
		}
		h.logger.Error("Failed to update product", zap.String("product_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to save product")
		return
	}

	h.logger.Info("Product updated", zap.String("product_id", id))
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) respondLoad(w http.ResponseWriter, msg string, err error) {
	switch {
	case err == nil:
		middleware.RespondWithJSON(w, http.StatusOK, h.stateResponse())
	case errors.Is(err, service.ErrSuperseded):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Warn(msg, zap.Error(err))
		middleware.RespondWithErrorDetails(w, http.StatusBadGateway, err.Error(), map[string]any{
			"count": len(h.store.Products()),
		})
	}
}

func (h *ProductHandler) stateResponse() StateResponse {
	state := h.store.State()
	return StateResponse{
		Count:     len(state.Products),
		Loading:   state.Loading,
		Error:     state.Error,
		LastFetch: state.LastFetch,
	}
}

func (req ProductRequest) Fields() domain.ProductFields {
	title := strings.TrimSpace(req.Title)
	description := req.Description
	brand := req.Brand
	category := req.Category
	thumbnail := req.Thumbnail
	return domain.ProductFields{
		Title:       &title,
		Description: &description,
		Price:       req.Price,
		Stock:       req.Stock,
		Brand:       &brand,
		Category:    &category,
		Thumbnail:   &thumbnail,
		Tags:        req.Tags,
		Images:      req.Images,
	}
}

func (req ProductPatchRequest) Fields() domain.ProductFields {
	return domain.ProductFields{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Brand:       req.Brand,
		Category:    req.Category,
		Thumbnail:   req.Thumbnail,
		Tags:        req.Tags,
		Images:      req.Images,
	}
}

// decodeRequest writes the 400 response itself and reports whether to continue
func decodeRequest(w http.ResponseWriter, r *http.Request, v any, logger *zap.Logger) bool {
	err := middleware.DecodeAndValidate(r, v)
	if err == nil {
		return true
	}

	logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return false
	}
	if errors.Is(err, middleware.ErrEmptyBody) {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
	return false
}
