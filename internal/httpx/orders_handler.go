package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/ariefcatur/go-checkout-core/internal/checkout"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/go-chi/chi/v5"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

type createOrderReq struct {
	ShippingAddress json.RawMessage      `json:"shipping_address"`
	BillingAddress  json.RawMessage      `json:"billing_address"`
	PaymentMethod   orders.PaymentMethod `json:"payment_method"`
}

type initiatePaymentReq struct {
	OrderID       string               `json:"order_id"`
	PaymentMethod orders.PaymentMethod `json:"payment_method"`
}

type verifyPaymentReq struct {
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	o, replayed, err := a.Checkout.CreateOrder(r.Context(), checkout.Request{
		UserID:          userID(r),
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if replayed {
		w.Header().Set(headerReplayed, "true")
		writeData(w, http.StatusOK, o)
		return
	}
	writeData(w, http.StatusCreated, o)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	page := pageOf(r)
	list, total, err := a.Checkout.ListOrders(r.Context(), userID(r), page)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeList(w, "orders", list, page, total)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Checkout.GetOrder(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Checkout.Cancel(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (a *API) getOrderPayment(w http.ResponseWriter, r *http.Request) {
	p, err := a.Checkout.GetOrderPayment(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (a *API) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p, created, err := a.Payments.Initiate(r.Context(), userID(r), req.OrderID, req.PaymentMethod)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeData(w, code, p)
}

func (a *API) verifyPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req verifyPaymentReq
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.PaymentID != "" && req.PaymentID != id {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "payment_id does not match path id"})
		return
	}
	p, err := a.Payments.Verify(r.Context(), id, req.TransactionID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}
