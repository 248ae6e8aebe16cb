package http

import (
	"encoding/json"
	"io"
	"net/http"

	authmw "github.com/vts-learning/courseware/internal/auth/middleware"
	"github.com/vts-learning/courseware/internal/billing"
)

func CreateOrderHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CourseID string `json:"course_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.CourseID == "" {
			http.Error(w, "course_id required", 400)
			return
		}
		o, err := svc.CreateOrder(r.Context(), authmw.SubjectFromContext(r.Context()), req.CourseID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 201, o)
	}
}

// PaymentCallbackHandler is the gateway's server-to-server webhook. The
// HMAC is over the raw body, so read it before decoding. Unsigned or
// mis-signed calls are rejected without touching state.
func PaymentCallbackHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "bad body", 400)
			return
		}
		if !svc.VerifySignature(body, r.Header.Get("X-Signature")) {
			http.Error(w, "signature mismatch", 403)
			return
		}
		var cb billing.Callback
		if err := json.Unmarshal(body, &cb); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if cb.OrderID == "" {
			http.Error(w, "order_id required", 400)
			return
		}
		o, err := svc.HandleCallback(r.Context(), cb)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		writeJSON(w, 200, o)
	}
}

func MyOrdersHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.OrdersForUser(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, 200, list)
	}
}
