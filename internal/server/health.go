package server

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
}

func healthHandler(readiness Readiness) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !readiness.Ready() {
			writeJSON(r.Context(), w, healthResponse{Status: "unavailable"}, http.StatusServiceUnavailable)
			return
		}
		writeJSON(r.Context(), w, healthResponse{Status: "ok"}, http.StatusOK)
	})
}
