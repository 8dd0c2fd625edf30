package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := a.Cart.GetCart(r.Context(), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (a *API) validateCart(w http.ResponseWriter, r *http.Request) {
	v, err := a.Cart.Validate(r.Context(), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !v.Valid {
		writeJSON(w, http.StatusConflict, envelope{Success: false, Data: v})
		return
	}
	writeData(w, http.StatusOK, v)
}

func (a *API) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.Cart.AddItem(r.Context(), userID(r), req.ProductID, req.Quantity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

func (a *API) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req quantityReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.Cart.UpdateItem(r.Context(), userID(r), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (a *API) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := a.Cart.RemoveItem(r.Context(), userID(r), chi.URLParam(r, "itemID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (a *API) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := a.Cart.Clear(r.Context(), userID(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
