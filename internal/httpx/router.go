package httpx

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/kiosk-checkout/internal/kiosk"
)

// NewRouter mounts the kiosk session API. Every request counts as user
// activity and resets the idle countdown via the touch middleware.
func NewRouter(handler *Handler, session *kiosk.Session) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(touchMiddleware(session))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"alive": true}`)
	})

	r.Get("/menu", handler.GetMenu)
	r.Get("/menu/{category}", handler.GetMenuCategory)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", handler.GetCart)
		r.Post("/items", handler.AddCartItem)
		r.Delete("/items/{id}", handler.RemoveCartItem)
		r.Delete("/", handler.ClearCart)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/start", handler.StartCheckout)
		r.Post("/table", handler.ConfirmTable)
		r.Post("/order-type", handler.SelectOrderType)
		r.Post("/tip", handler.SelectTip)
		r.Post("/cancel", handler.CancelCheckout)
		r.Post("/retry", handler.RetryCheckout)
		r.Get("/status", handler.GetCheckoutStatus)
		r.Get("/log/{id}", handler.GetCheckoutLog)
	})

	r.Post("/session/touch", handler.Touch)

	return r
}

// touchMiddleware feeds every incoming request into the idle monitor: any
// interaction with the kiosk screen results in an API call, so requests
// are the activity signal.
func touchMiddleware(session *kiosk.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session.Touch()
			next.ServeHTTP(w, r)
		})
	}
}
