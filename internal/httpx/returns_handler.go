package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createReturnReq struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func (a *API) createReturn(w http.ResponseWriter, r *http.Request) {
	var req createReturnReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	ret, err := a.Returns.Create(r.Context(), userID(r), req.OrderID, req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, ret)
}

func (a *API) listReturns(w http.ResponseWriter, r *http.Request) {
	page := pageOf(r)
	list, total, err := a.Returns.List(r.Context(), userID(r), page)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeList(w, "returns", list, page, total)
}

func (a *API) getReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := a.Returns.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ret)
}
