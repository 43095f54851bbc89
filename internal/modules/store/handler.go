package store

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/storesvc/internal/modules/order"
)

// Handler exposes store and approval HTTP endpoints.
type Handler struct {
	service Service
	auth    func(http.Handler) http.Handler
}

// NewHandler creates the HTTP handler. auth wraps the mutating routes;
// pass a pass-through middleware to disable it.
func NewHandler(service Service, auth func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stores/{id}/items", h.listItems)

		r.Group(func(r chi.Router) {
			r.Use(h.auth)
			r.Post("/stores", h.createStore)
			r.Post("/stores/{id}/items", h.addItem)
			r.Delete("/stores/{id}/items/{item_id}", h.removeItem)
			r.Patch("/stores/{id}/items/{item_id}/quantity", h.setItemQuantity)
			r.Post("/orders/{id}/approval", h.approveOrder)
		})
	})
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	o, err := h.service.ApproveOrder(r.Context(), orderID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"orderId":     o.ID,
		"storeId":     o.StoreID,
		"orderStatus": string(order.StatusApproved),
	})
}

func (h *Handler) createStore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	st, err := h.service.CreateStore(r.Context(), req.Name)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, map[string]interface{}{
		"storeId":   st.ID,
		"storeName": st.Name,
	})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.GetStore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	items := st.ListItems()
	if items == nil {
		items = []*Item{}
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"storeId":   st.ID,
		"storeName": st.Name,
		"items":     items,
	})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"name"`
		Price    float64 `json:"price"`
		Quantity int     `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	item, err := h.service.AddItem(r.Context(), chi.URLParam(r, "id"), req.Name, req.Price, req.Quantity)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, item)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item_id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	err := h.service.SetItemQuantity(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item_id"), req.Quantity)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "quantity updated"})
}

// respondErr maps the error taxonomy onto status codes: not-found ids to
// 404, business rejections to 400, races and duplicates to 409,
// everything else to 500.
func respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidStoreID),
		errors.Is(err, ErrInvalidItemID),
		errors.Is(err, order.ErrInvalidOrderID):
		status = http.StatusNotFound
	case errors.Is(err, ErrCannotApprove),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidQuantity):
		status = http.StatusBadRequest
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicateApproval):
		status = http.StatusConflict
	}
	respond(w, status, map[string]string{"message": err.Error()})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
