package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/coinledger/internal/auth"
)

// NewRouter mounts the store API, /health and /metrics.
func NewRouter(h *Handler, jwtSecret []byte) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	requireCustomer := auth.Middleware(jwtSecret, rejectUnauthenticated)
	authed := func(fn http.HandlerFunc) http.Handler { return requireCustomer(fn) }

	r.Handle("/store/customers/me", authed(h.GetCustomerHandler)).Methods(http.MethodGet)
	r.Handle("/store/customers/me/points", authed(h.GetPointsHandler)).Methods(http.MethodGet)
	r.Handle("/store/customers/me/points/redeem", authed(h.RedeemHandler)).Methods(http.MethodPost)
	r.Handle("/store/customers/me/points/redeem", authed(h.RemoveRedemptionHandler)).Methods(http.MethodDelete)

	r.HandleFunc("/store/variants/{id}/point-config", h.GetPointConfigHandler).Methods(http.MethodGet)
	r.HandleFunc("/store/carts/{id}", h.GetCartHandler).Methods(http.MethodGet)

	return r
}

func rejectUnauthenticated(w http.ResponseWriter, err error) {
	msg := "Authentication required"
	if errors.Is(err, auth.ErrExpiredToken) {
		msg = "Session expired, please log in again"
	}
	respondWithError(w, http.StatusUnauthorized, msg)
}
