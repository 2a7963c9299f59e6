package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/nikolayk812/storefront-cart/internal/logger"
)

type updateQuantityRequest struct {
	Delta *int `json:"delta" validate:"required"`
}

type handlers struct {
	store *cart.Store
	logg  *logger.Logger
}

func (h *handlers) getCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newCartResponse(h.store.Snapshot()))
}

func (h *handlers) getCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, countResponse{Count: cart.Count(h.store.Snapshot())})
}

func (h *handlers) addItem(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if err := decodeJSONBody(r, &product, false); err != nil {
		h.writeRequestError(w, r, err)
		return
	}

	c := h.store.Add(product)
	h.logg.Debug(h.logg.WithField(r.Context(), "product_id", product.ID), "item added")

	writeJSON(w, http.StatusOK, newCartResponse(c))
}

func (h *handlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := decodeJSONBody(r, &req, true); err != nil {
		h.writeRequestError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(h.store.UpdateQuantity(id, *req.Delta)))
}

func (h *handlers) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(h.store.Remove(id)))
}

func (h *handlers) clearCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newCartResponse(h.store.Clear()))
}

func (h *handlers) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id", map[string]string{"id": raw})
		return 0, false
	}

	return id, true
}

func (h *handlers) writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeError(w, http.StatusBadRequest, reqErr.msg, reqErr.details)
		return
	}

	h.logg.Error(r.Context(), "unexpected request error", err)
	writeError(w, http.StatusInternalServerError, "internal error", nil)
}
