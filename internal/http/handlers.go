package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"squadpay/internal/core"
	"squadpay/internal/services"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squadpay_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "squadpay_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type newMemberRequest struct {
	DisplayName string `json:"displayName"`
	Contact     string `json:"contact,omitempty"`
}

type createPaymentRequest struct {
	MatchRef    string             `json:"matchRef"`
	TotalAmount string             `json:"totalAmount"`
	Members     []newMemberRequest `json:"members,omitempty"`
}

type setTotalRequest struct {
	TotalAmount string `json:"totalAmount"`
}

type adjustShareRequest struct {
	Mode   string `json:"mode"`
	Amount string `json:"amount,omitempty"`
}

type recordPaymentRequest struct {
	Amount string     `json:"amount"`
	Method string     `json:"method,omitempty"`
	Note   string     `json:"note,omitempty"`
	PaidAt *time.Time `json:"paidAt,omitempty"`
}

type settleRequest struct {
	ToMemberID string `json:"toMemberId"`
	Amount     string `json:"amount"`
}

type screenshotRequest struct {
	Ref string `json:"ref"`
}

type sendRequestsRequest struct {
	MemberIDs []string `json:"memberIds,omitempty"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	totalPaise, err := core.ParseDecimalToPaise(req.TotalAmount)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid total amount")
		return
	}

	initial := make([]services.NewMemberInput, 0, len(req.Members))
	for _, m := range req.Members {
		initial = append(initial, services.NewMemberInput{DisplayName: m.DisplayName, Contact: m.Contact})
	}

	agg, err := s.svc.CreatePayment(r.Context(), req.MatchRef, totalPaise, initial)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, buildPaymentResponse(agg))
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if snap, found := s.snapshotCache.Get(id); found {
		respondWithJSON(w, http.StatusOK, snap)
		return
	}

	agg, err := s.svc.GetAggregate(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	resp := buildPaymentResponse(agg)
	s.snapshotCache.Set(id, resp)
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.svc.DeletePayment(r.Context(), id); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListByMatch(w http.ResponseWriter, r *http.Request) {
	matchRef := mux.Vars(r)["matchRef"]

	aggs, err := s.svc.ListAggregatesByMatch(r.Context(), matchRef)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	items := make([]paymentResponse, 0, len(aggs))
	for _, a := range aggs {
		items = append(items, buildPaymentResponse(a))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"matchRef": matchRef, "payments": items})
}

func (s *Server) handleSetTotal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req setTotalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	totalPaise, err := core.ParseDecimalToPaise(req.TotalAmount)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid total amount")
		return
	}

	agg, err := s.svc.SetTotalAmount(r.Context(), id, totalPaise)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	respondWithJSON(w, http.StatusOK, buildPaymentResponse(agg))
}

func (s *Server) handleSendRequests(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Empty body means "send to everyone still pending".
	var req sendRequestsRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}

	report, err := s.svc.SendPaymentRequests(r.Context(), id, req.MemberIDs)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, report)
}

// respondWithDomainError maps domain sentinel errors onto HTTP statuses.
func respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var oc *core.OverconstrainedError
	switch {
	case errors.As(err, &oc):
		respondWithJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":          "Fixed shares exceed the total amount",
			"shortfallPaise": oc.ShortfallPaise,
		})
	case errors.Is(err, core.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, core.ErrDuplicateMember):
		respondWithError(w, http.StatusConflict, "A member with this contact already exists")
	case errors.Is(err, core.ErrConflict):
		respondWithError(w, http.StatusConflict, "Concurrent modification, retry the request")
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrEmptyName), errors.Is(err, core.ErrInvalidInput):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Unhandled service error", "error", err, "url", r.URL.Path)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
