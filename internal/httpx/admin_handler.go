package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type statusReq struct {
	Status orders.Status `json:"status"`
}

type failPaymentReq struct {
	Reason string `json:"reason"`
}

type processReturnReq struct {
	Status       orders.ReturnStatus `json:"status"`
	RefundAmount *decimal.Decimal    `json:"refund_amount"`
}

func (a *API) adminListOrders(w http.ResponseWriter, r *http.Request) {
	page := pageOf(r)
	status := orders.Status(r.URL.Query().Get("status"))
	list, total, err := a.Checkout.ListAllOrders(r.Context(), status, page)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeList(w, "orders", list, page, total)
}

func (a *API) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Checkout.AdminGetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (a *API) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	o, err := a.Checkout.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (a *API) adminFailPayment(w http.ResponseWriter, r *http.Request) {
	var req failPaymentReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.Payments.Fail(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (a *API) adminListReturns(w http.ResponseWriter, r *http.Request) {
	page := pageOf(r)
	status := orders.ReturnStatus(r.URL.Query().Get("status"))
	list, total, err := a.Returns.ListAll(r.Context(), status, page)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeList(w, "returns", list, page, total)
}

func (a *API) adminProcessReturn(w http.ResponseWriter, r *http.Request) {
	var req processReturnReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	ret, err := a.Returns.Process(r.Context(), chi.URLParam(r, "id"), req.Status, req.RefundAmount)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ret)
}
