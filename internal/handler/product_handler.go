package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"digistore/internal/models"
	"digistore/internal/service"
)

// ProductsHandler serves /products.
type ProductsHandler struct {
	logger  *logrus.Logger
	catalog *service.CatalogService
	admin   adminAuth
}

func NewProductsHandler(logger *logrus.Logger, catalog *service.CatalogService, gate *service.AdminGate) *ProductsHandler {
	return &ProductsHandler{logger: logger, catalog: catalog, admin: adminAuth{gate: gate, logger: logger}}
}

func (h *ProductsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		products, err := h.catalog.List(r.Context(), service.ProductFilter{
			Category: models.Category(q.Get("category")),
			Featured: q.Get("featured") == "true",
			Query:    q.Get("q"),
		})
		if err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, products)

	case http.MethodPost:
		if !h.admin.require(w, r) {
			return
		}
		var in service.ProductInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		product, err := h.catalog.Create(r.Context(), in)
		if err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		writeJSON(w, h.logger, http.StatusCreated, product)

	default:
		methodNotAllowed(w, r, h.logger)
	}
}

// ProductHandler serves /products/{id}.
type ProductHandler struct {
	logger  *logrus.Logger
	catalog *service.CatalogService
	admin   adminAuth
}

func NewProductHandler(logger *logrus.Logger, catalog *service.CatalogService, gate *service.AdminGate) *ProductHandler {
	return &ProductHandler{logger: logger, catalog: catalog, admin: adminAuth{gate: gate, logger: logger}}
}

func (h *ProductHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	switch r.Method {
	case http.MethodGet:
		product, err := h.catalog.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, product)

	case http.MethodPut:
		if !h.admin.require(w, r) {
			return
		}
		var in service.ProductInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		product, err := h.catalog.Update(r.Context(), id, in)
		if err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, product)

	case http.MethodDelete:
		if !h.admin.require(w, r) {
			return
		}
		product, err := h.catalog.Delete(r.Context(), id)
		if err != nil {
			writeError(w, r, h.logger, err, true)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, map[string]any{"success": true, "product": product})

	default:
		methodNotAllowed(w, r, h.logger)
	}
}
