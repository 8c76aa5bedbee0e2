package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/service"
)

func (h *ServiceHandler) CreateRuleSet(w http.ResponseWriter, r *http.Request) {
	var ruleSet api.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&ruleSet); err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode body: %v", err))
		return
	}

	if ruleSet.Name == "" {
		renderError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	for i := range ruleSet.Rules {
		if err := h.ruleSetValidator.Struct(ruleSet.Rules[i]); err != nil {
			renderError(w, r, http.StatusBadRequest, fmt.Sprintf("rule %d: %v", i, err))
			return
		}
	}

	created, err := h.ruleSetSrv.Create(r.Context(), ruleSet)
	if err != nil {
		switch err.(type) {
		case *service.ErrInvalidRuleSet:
			renderError(w, r, http.StatusBadRequest, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to create rule set: %v", err))
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

func (h *ServiceHandler) ListRuleSets(w http.ResponseWriter, r *http.Request) {
	ruleSets, err := h.ruleSetSrv.List(r.Context())
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list rule sets: %v", err))
		return
	}
	render.JSON(w, r, ruleSets)
}

func (h *ServiceHandler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "id must be a valid uuid")
		return
	}

	ruleSet, err := h.ruleSetSrv.Get(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get rule set: %v", err))
		}
		return
	}
	render.JSON(w, r, ruleSet)
}

func (h *ServiceHandler) DeleteRuleSet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "id must be a valid uuid")
		return
	}

	if err := h.ruleSetSrv.Delete(r.Context(), id); err != nil {
		renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to delete rule set: %v", err))
		return
	}
	render.NoContent(w, r)
}
