package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"squadpay/internal/core"
)

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req newMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	agg, err := s.svc.AddMember(r.Context(), id, req.DisplayName, req.Contact)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	respondWithJSON(w, http.StatusCreated, buildPaymentResponse(agg))
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, memberID := vars["id"], vars["memberId"]

	agg, err := s.svc.RemoveMember(r.Context(), id, memberID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	respondWithJSON(w, http.StatusOK, buildPaymentResponse(agg))
}

func (s *Server) handleAdjustShare(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, memberID := vars["id"], vars["memberId"]

	var req adjustShareRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var share core.Share
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "automatic":
		share = core.AutomaticShare()
	case "fixed":
		// Zero is a valid fixed share: the member plays for free.
		paise, err := core.ParseShareToPaise(req.Amount)
		if err != nil {
			respondWithError(w, http.StatusUnprocessableEntity, "Invalid share amount")
			return
		}
		share = core.FixedShare(paise)
	default:
		respondWithError(w, http.StatusBadRequest, "Share mode must be automatic or fixed")
		return
	}

	agg, err := s.svc.AdjustMemberAmount(r.Context(), id, memberID, share)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	respondWithJSON(w, http.StatusOK, buildPaymentResponse(agg))
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, memberID := vars["id"], vars["memberId"]

	var req recordPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	paise, err := core.ParseDecimalToPaise(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid payment amount")
		return
	}

	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	agg, err := s.svc.RecordPayment(r.Context(), id, memberID, paise, core.PaymentMethod(req.Method), req.Note, paidAt)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	respondWithJSON(w, http.StatusOK, buildPaymentResponse(agg))
}

func (s *Server) handleListPaymentEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, memberID := vars["id"], vars["memberId"]

	agg, err := s.svc.GetAggregate(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if agg.MemberByID(memberID) == nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	events, err := s.svc.ListPaymentEvents(r.Context(), memberID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	items := make([]eventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, buildEventResponse(e))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"memberId": memberID, "events": items})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, fromID := vars["id"], vars["memberId"]

	var req settleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	paise, err := core.ParseDecimalToPaise(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, "Invalid settlement amount")
		return
	}

	agg, err := s.svc.SettleAcross(r.Context(), id, fromID, req.ToMemberID, paise)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	respondWithJSON(w, http.StatusOK, buildPaymentResponse(agg))
}

func (s *Server) handleMarkUnpaid(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, memberID := vars["id"], vars["memberId"]

	agg, err := s.svc.MarkUnpaid(r.Context(), id, memberID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	respondWithJSON(w, http.StatusOK, buildPaymentResponse(agg))
}

func (s *Server) handleAttachScreenshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, memberID := vars["id"], vars["memberId"]

	var req screenshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Ref) == "" {
		respondWithError(w, http.StatusBadRequest, "Screenshot reference required")
		return
	}

	agg, err := s.svc.AttachScreenshot(r.Context(), id, memberID, req.Ref)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	s.snapshotCache.Delete(id)
	respondWithJSON(w, http.StatusOK, buildPaymentResponse(agg))
}
