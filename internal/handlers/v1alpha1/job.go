package v1alpha1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	api "github.com/tabval/validation-service/api/v1alpha1"
	"github.com/tabval/validation-service/internal/service"
)

const maxUploadMemory = 32 << 20

func (h *ServiceHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		renderError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to read multipart form: %v", err))
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ruleSetID, err := uuid.Parse(r.FormValue("rule_set_id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "rule_set_id must be a valid uuid")
		return
	}

	submission := api.JobSubmission{
		FileName:        fileHeader.Filename,
		RuleSetId:       ruleSetID,
		OnFailurePolicy: api.FailurePolicy(r.FormValue("on_failure_policy")),
	}
	if v := r.FormValue("chunk_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			renderError(w, r, http.StatusBadRequest, "chunk_size must be an integer")
			return
		}
		submission.ChunkSize = &size
	}
	if v := r.FormValue("concurrency"); v != "" {
		concurrency, err := strconv.Atoi(v)
		if err != nil {
			renderError(w, r, http.StatusBadRequest, "concurrency must be an integer")
			return
		}
		submission.Concurrency = &concurrency
	}

	if err := h.jobValidator.Struct(submission); err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobSrv.Submit(r.Context(), submission, file)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrFileCorrupted:
			renderError(w, r, http.StatusBadRequest, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to submit job: %v", err))
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, job)
}

func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobSrv.List(r.Context())
	if err != nil {
		renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
		return
	}
	render.JSON(w, r, jobs)
}

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "id must be a valid uuid")
		return
	}

	job, err := h.jobSrv.Get(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
		}
		return
	}
	render.JSON(w, r, job)
}

func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "id must be a valid uuid")
		return
	}

	job, err := h.jobSrv.Cancel(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrJobAlreadyCompleted:
			renderError(w, r, http.StatusConflict, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to cancel job: %v", err))
		}
		return
	}
	render.JSON(w, r, job)
}

func (h *ServiceHandler) GetJobReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "id must be a valid uuid")
		return
	}

	report, err := h.jobSrv.GetReport(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrJobNotCompleted:
			renderError(w, r, http.StatusConflict, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get report: %v", err))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(report)
}

func (h *ServiceHandler) ListJobAuditEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "id must be a valid uuid")
		return
	}

	afterSequence := int64(0)
	if v := r.URL.Query().Get("after"); v != "" {
		if afterSequence, err = strconv.ParseInt(v, 10, 64); err != nil {
			renderError(w, r, http.StatusBadRequest, "after must be an integer")
			return
		}
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			renderError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}

	entries, err := h.jobSrv.ListAuditEvents(r.Context(), id, afterSequence, limit)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			renderError(w, r, http.StatusNotFound, err.Error())
		default:
			renderError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
		}
		return
	}
	render.JSON(w, r, entries)
}
