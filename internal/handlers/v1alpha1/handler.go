// Package v1alpha1 exposes the validation service over HTTP: job
// submission and lifecycle, reports, audit trails and rule-set management.
package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tabval/validation-service/internal/handlers/validator"
	"github.com/tabval/validation-service/internal/service"
	"github.com/tabval/validation-service/pkg/requestid"
)

type ServiceHandler struct {
	jobSrv           *service.JobService
	ruleSetSrv       *service.RuleSetService
	jobValidator     *validator.Validator
	ruleSetValidator *validator.Validator
}

func NewServiceHandler(jobSrv *service.JobService, ruleSetSrv *service.RuleSetService) *ServiceHandler {
	jobValidator := validator.NewValidator()
	jobValidator.Register(validator.NewJobValidationRules()...)

	ruleSetValidator := validator.NewValidator()
	ruleSetValidator.Register(validator.NewRuleSetValidationRules()...)

	return &ServiceHandler{
		jobSrv:           jobSrv,
		ruleSetSrv:       ruleSetSrv,
		jobValidator:     jobValidator,
		ruleSetValidator: ruleSetValidator,
	}
}

func (h *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/v1alpha1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.SubmitJob)
			r.Get("/", h.ListJobs)
			r.Get("/{id}", h.GetJob)
			r.Post("/{id}/cancel", h.CancelJob)
			r.Get("/{id}/report", h.GetJobReport)
			r.Get("/{id}/audit", h.ListJobAuditEvents)
		})
		r.Route("/rulesets", func(r chi.Router) {
			r.Post("/", h.CreateRuleSet)
			r.Get("/", h.ListRuleSets)
			r.Get("/{id}", h.GetRuleSet)
			r.Delete("/{id}", h.DeleteRuleSet)
		})
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type ErrorReply struct {
	Message   string  `json:"message"`
	RequestId *string `json:"request_id,omitempty"`

	status int
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.status)
	return nil
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	_ = render.Render(w, r, ErrorReply{
		Message:   message,
		RequestId: requestid.FromContextPtr(r.Context()),
		status:    status,
	})
}
