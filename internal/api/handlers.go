// Package api exposes the HTTP surface of the membership service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"example.com/membership/internal/auth"
	"example.com/membership/internal/domain"
	"example.com/membership/internal/persistence"
	"example.com/membership/internal/scanner"
)

const dateLayout = "2006-01-02"

// Handler coordinates HTTP requests with the domain service and the scanner.
type Handler struct {
	service *domain.Service
	scanner *scanner.Scanner
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, scanner *scanner.Scanner) *Handler {
	return &Handler{service: service, scanner: scanner}
}

// Routes wires every endpoint onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", healthz)

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.createPayment)
		r.Get("/athlete/{athleteID}", h.listByAthlete)
		r.Get("/pending", h.listPending)
		r.Get("/{id}", h.getPayment)
		r.Patch("/{id}/approve", h.approvePayment)
		r.Patch("/{id}/reject", h.rejectPayment)
		r.Patch("/{id}/evidence", h.attachEvidence)
	})

	r.Route("/entitlements", func(r chi.Router) {
		r.Get("/athlete/{athleteID}", h.athleteEntitlements)
		r.Get("/athlete/{athleteID}/access", h.athleteAccess)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/expiring", h.expiringNotifications)
		r.Get("/expired", h.expiredNotifications)
		r.Post("/force-check", h.forceCheck)
	})

	r.Route("/fees", func(r chi.Router) {
		r.Post("/", h.createFeeVersion)
		r.Get("/current", h.currentFee)
	})

	r.Get("/dashboard/summary", h.dashboardSummary)

	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsWrite) {
		return
	}

	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	input, err := req.ToInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	payment, err := h.service.CreateClaim(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentView(*payment))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsRead, auth.ScopePaymentsWrite) {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentView(*payment))
}

func (h *Handler) listByAthlete(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsRead, auth.ScopePaymentsWrite) {
		return
	}

	athleteID := chi.URLParam(r, "athleteID")

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	payments, next, err := h.service.ListByAthlete(r.Context(), athleteID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ListPaymentsResponse{
		Items:      toPaymentViews(payments),
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsRead, auth.ScopePaymentsApprove) {
		return
	}

	payments, err := h.service.ListPending(r.Context(), r.URL.Query().Get("coach_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListPaymentsResponse{Items: toPaymentViews(payments)})
}

func (h *Handler) approvePayment(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsApprove) {
		return
	}

	payment, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentView(*payment))
}

func (h *Handler) rejectPayment(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsApprove) {
		return
	}

	payment, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentView(*payment))
}

func (h *Handler) attachEvidence(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsWrite) {
		return
	}

	var req EvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	payment, err := h.service.AttachEvidence(r.Context(), chi.URLParam(r, "id"), domain.Evidence{
		URL:  strings.TrimSpace(req.EvidenceURL),
		Text: strings.TrimSpace(req.EvidenceText),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentView(*payment))
}

func (h *Handler) athleteEntitlements(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsRead, auth.ScopePaymentsWrite) {
		return
	}

	views, err := h.service.AthleteEntitlements(r.Context(), chi.URLParam(r, "athleteID"), thresholdParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]EntitlementView, 0, len(views))
	for _, v := range views {
		item := EntitlementView{
			AthleteID:      v.Entitlement.AthleteID,
			ActivityID:     v.Entitlement.ActivityID,
			IsActive:       v.Entitlement.IsActive,
			StartDate:      v.Entitlement.StartDate.Format(dateLayout),
			EndDate:        v.Entitlement.EndDate.Format(dateLayout),
			DaysUntilDue:   v.Assessment.DaysUntilDue,
			Classification: string(v.Assessment.Classification),
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) athleteAccess(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsRead, auth.ScopePaymentsWrite) {
		return
	}

	hasAccess, err := h.service.HasAccess(r.Context(), chi.URLParam(r, "athleteID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_access": hasAccess})
}

func (h *Handler) expiringNotifications(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeNotificationsRead) {
		return
	}

	days := domain.DefaultDueSoonThreshold
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "validation_failed", "days must be a positive integer")
			return
		}
		days = parsed
	}

	records, err := h.scanner.ForceCheck(r.Context(), days)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]NotificationView, 0, len(records))
	for _, record := range records {
		if record.IsExpired {
			continue
		}
		items = append(items, toNotificationView(record))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) expiredNotifications(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeNotificationsRead) {
		return
	}

	records, err := h.scanner.ForceCheck(r.Context(), domain.DefaultDueSoonThreshold)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]NotificationView, 0, len(records))
	for _, record := range records {
		if !record.IsExpired {
			continue
		}
		items = append(items, toNotificationView(record))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) forceCheck(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeNotificationsRead) {
		return
	}

	var req ForceCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.DaysThreshold < 1 {
		writeError(w, http.StatusBadRequest, "validation_failed", "days_threshold must be a positive integer")
		return
	}

	records, err := h.scanner.ForceCheck(r.Context(), req.DaysThreshold)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]NotificationView, 0, len(records))
	for _, record := range records {
		items = append(items, toNotificationView(record))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "days_threshold": req.DaysThreshold})
}

func (h *Handler) createFeeVersion(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeFeesWrite) {
		return
	}

	var req CreateFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	input, err := req.ToInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	version, err := h.service.CreateFeeVersion(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeeView(*version))
}

func (h *Handler) currentFee(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsRead, auth.ScopeFeesWrite) {
		return
	}

	activityType := strings.TrimSpace(r.URL.Query().Get("activity_type"))
	if activityType == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing activity_type parameter")
		return
	}

	version, err := h.service.CurrentFee(r.Context(), activityType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeeView(*version))
}

func (h *Handler) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePaymentsRead) {
		return
	}

	summary, err := h.service.DashboardSummary(r.Context(), thresholdParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardSummaryResponse{
		PendingPayments:   summary.PendingPayments,
		ApprovedThisMonth: summary.ApprovedThisMonth,
		ActiveAthletes:    summary.ActiveAthletes,
		DueSoonAthletes:   summary.DueSoonAthletes,
		ExpiredAthletes:   summary.ExpiredAthletes,
		RecentApproved:    toPaymentViews(summary.RecentApproved),
	})
}

func thresholdParam(r *http.Request) int {
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return domain.DefaultDueSoonThreshold
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return false
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrAthleteNotFound),
		errors.Is(err, domain.ErrNoCurrentFee):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrPaymentNotPending):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		// Store failures are transient; state is unchanged and the call can be retried.
		writeError(w, http.StatusServiceUnavailable, "storage_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
