package httpapi

import "github.com/go-chi/chi/v5"

// Routes mounts the cart and checkout endpoints. Middleware is the
// caller's business.
func Routes(r chi.Router, carts *CartHandler, checkouts *CheckoutHandler) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", carts.GetCart)
		r.Delete("/", carts.ClearCart)
		r.Post("/items", carts.AddItem)
		r.Put("/items/{item_id}", carts.UpdateQuantity)
		r.Delete("/items/{item_id}", carts.RemoveItem)
		r.Post("/coupon", carts.ApplyCoupon)
		r.Delete("/coupon", carts.RemoveCoupon)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", checkouts.Begin)
		r.Route("/{checkout_id}", func(r chi.Router) {
			r.Get("/", checkouts.Get)
			r.Post("/guest", checkouts.SubmitGuestEmail)
			r.Post("/cart/confirm", checkouts.ConfirmCart)
			r.Post("/shipping", checkouts.CommitShipping)
			r.Post("/payment", checkouts.CommitPayment)
			r.Post("/prev", checkouts.Prev)
			r.Post("/order", checkouts.PlaceOrder)
		})
	})
}
