package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-checkout-core/internal/cart"
	"github.com/ariefcatur/go-checkout-core/internal/checkout"
	"github.com/ariefcatur/go-checkout-core/internal/inventory"
	"github.com/ariefcatur/go-checkout-core/internal/payment"
	"github.com/ariefcatur/go-checkout-core/internal/returns"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// API maps HTTP calls onto the services. It parses and renders only; every
// rule lives in the services.
type API struct {
	Catalog   *inventory.Catalog
	Cart      *cart.Service
	Checkout  *checkout.Service
	Payments  *payment.Service
	Returns   *returns.Service
	JWTSecret []byte
	Log       logrus.FieldLogger
}

func (a *API) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products/{id}", a.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(a.JWTSecret))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", a.getCart)
				r.Get("/validate", a.validateCart)
				r.Post("/items", a.addCartItem)
				r.Put("/items/{itemID}", a.updateCartItem)
				r.Delete("/items/{itemID}", a.removeCartItem)
				r.Delete("/", a.clearCart)
			})
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", a.listOrders)
				r.Post("/", a.createOrder)
				r.Get("/{id}", a.getOrder)
				r.Put("/{id}/cancel", a.cancelOrder)
				r.Get("/{id}/payment", a.getOrderPayment)
			})
			r.Route("/payments", func(r chi.Router) {
				r.Post("/", a.initiatePayment)
				r.Post("/{id}/verify", a.verifyPayment)
			})
			r.Route("/returns", func(r chi.Router) {
				r.Post("/", a.createReturn)
				r.Get("/", a.listReturns)
				r.Get("/{id}", a.getReturn)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(RoleAdmin))
				r.Get("/orders", a.adminListOrders)
				r.Get("/orders/{id}", a.adminGetOrder)
				r.Put("/orders/{id}/status", a.adminUpdateStatus)
				r.Post("/payments/{id}/fail", a.adminFailPayment)
				r.Get("/returns", a.adminListReturns)
				r.Post("/returns/{id}/process", a.adminProcessReturn)
			})
		})
	})
}

func userID(r *http.Request) string {
	p, _ := principalFrom(r.Context())
	return p.UserID
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, a.Log, err)
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.Catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}
