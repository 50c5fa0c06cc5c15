package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/me/ingestd/internal/scheduler"
	"github.com/me/ingestd/internal/status"
	"github.com/me/ingestd/pkg/model"
)

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	if err := s.validate.Struct(req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, validationError(err))
		return
	}

	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		respondInvalid(w, reqID, "invalid request body", "priority", err.Error())
		return
	}

	res, err := s.scheduler.Submit(r.Context(), req.ItemIDs, priority)
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidSubmission) {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
			return
		}
		s.logger.Error("submit failed", "error", err, "request_id", reqID)
		respondInternal(w, reqID, err)
		return
	}

	body := model.SubmitResponse{
		SubmissionID: res.SubmissionID,
		Status:       res.Status,
		Duplicate:    res.Duplicate,
	}
	if res.Duplicate {
		respondOK(w, reqID, body)
		return
	}
	respondCreated(w, reqID, body)
}

// validationError converts validator output into field-level details.
func validationError(err error) *model.APIError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewValidationError(err.Error())
	}
	details := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, model.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return model.NewValidationError("invalid request body", details...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must contain at least %s item(s)", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()

	opts := model.DefaultListOptions()
	if v := q.Get("status"); v != "" {
		st, err := model.ParseRequestStatus(v)
		if err != nil {
			respondInvalid(w, reqID, "invalid query", "status", err.Error())
			return
		}
		opts.Status = st
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			respondInvalid(w, reqID, "invalid query", p.name, p.name+" must be an integer")
			return
		}
		*p.dst = n
	}
	opts.Clamp()

	subs, total := s.scheduler.Aggregator().List(opts)
	respondList(w, reqID, subs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sub, err := s.scheduler.Status(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, reqID, id, err)
		return
	}
	respondOK(w, reqID, sub)
}

func (s *Server) handleSubmissionSummary(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	summary, err := s.scheduler.Aggregator().Summary(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, reqID, id, err)
		return
	}
	respondOK(w, reqID, summary)
}

func (s *Server) respondLookupError(w http.ResponseWriter, reqID, id string, err error) {
	if errors.Is(err, status.ErrNotFound) {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("submission", id))
		return
	}
	s.logger.Error("submission lookup failed", "id", id, "error", err)
	respondInternal(w, reqID, err)
}
