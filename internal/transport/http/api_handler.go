package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"assessment-service/internal/app"
	"assessment-service/internal/auth"
	"assessment-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

// APIHandler serves the assessment listing and result review.
type APIHandler struct {
	service  *app.AttemptService
	identity auth.Provider
}

func NewAPIHandler(service *app.AttemptService, identity auth.Provider) *APIHandler {
	return &APIHandler{service: service, identity: identity}
}

func (h *APIHandler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	if _, err := h.identity.Identify(r); err != nil {
		respondError(w, err)
		return
	}
	list, err := h.service.ListAssessments(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.AssessmentSummary{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GetResult returns the caller's review for an assessment. A 404 with
// navigate "assessment" tells the client to start the assessment instead.
func (h *APIHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.Identify(r)
	if err != nil {
		respondError(w, err)
		return
	}
	review, err := h.service.Review(r.Context(), chi.URLParam(r, "id"), user.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, review)
}

// navigateAssessment sends a user without a result to take the assessment.
const navigateAssessment app.Destination = "assessment"

type apiError struct {
	Error    string          `json:"error"`
	Navigate app.Destination `json:"navigate,omitempty"`
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		respondJSON(w, http.StatusUnauthorized, apiError{Error: "unauthenticated", Navigate: app.DestinationSignIn})
	case errors.Is(err, domain.ErrResultNotFound):
		respondJSON(w, http.StatusNotFound, apiError{Error: err.Error(), Navigate: navigateAssessment})
	case errors.Is(err, domain.ErrAssessmentNotFound):
		respondJSON(w, http.StatusNotFound, apiError{Error: err.Error(), Navigate: app.DestinationListing})
	default:
		log.Printf("api error: %v", err)
		respondJSON(w, http.StatusInternalServerError, apiError{Error: "internal error", Navigate: app.DestinationListing})
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}
