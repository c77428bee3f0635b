package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"dubflow/internal/fileutil"
	"dubflow/internal/logging"
	"dubflow/internal/queue"
	"dubflow/internal/services"
	"dubflow/internal/speech"
	"dubflow/internal/workflow"
)

// jsonOverhead allows for escaping when SRT text arrives inside JSON.
const jsonOverhead = 64 << 10

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.submit.Allow() {
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusTooManyRequests, "submission rate exceeded")
		return
	}
	limit := s.cfg.API.MaxSubmitBytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2*limit+jsonOverhead))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "submission too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	req := SubmitRequest{SRT: string(body), Voice: r.URL.Query().Get("voice")}
	if isJSON(r.Header.Get("Content-Type")) {
		req = SubmitRequest{}
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}
	req.Voice = strings.ToLower(strings.TrimSpace(req.Voice))
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, describeValidation(err))
		return
	}

	var opts []workflow.SubmitOption
	if req.Voice != "" {
		opts = append(opts, workflow.WithVoice(req.Voice))
	}
	id, err := s.workflows.Submit(r.Context(), req.SRT, opts...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/api/workflows/"+id)
	writeJSON(w, http.StatusAccepted, SubmitResponse{WorkflowID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.workflows.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromWorkflowStatus(status))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.workflows.GetResult(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusAccepted, PendingResponse{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, FromMixResult(result))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	jobID, err := s.workflows.Retry(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RetryResponse{WorkflowID: id, JobID: jobID})
}

func (s *Server) handleWorkflowJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.queueSvc.Workflow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if len(jobs) == 0 {
		s.writeServiceError(w, workflow.ErrUnknownWorkflow)
		return
	}
	writeJSON(w, http.StatusOK, QueueListResponse{Jobs: jobs})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	path, err := fileutil.SafeJoin(s.cfg.Paths.ArtifactDir, r.PathValue("name"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if strings.HasSuffix(path, ".wav") {
		w.Header().Set("Content-Type", "audio/wav")
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, VoicesResponse{Voices: FromVoices(speech.Voices(), s.cfg.Speech.DefaultVoice)})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.API.MaxSubmitBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, describeValidation(err))
		return
	}
	writeJSON(w, http.StatusOK, EstimateResponse{
		Seconds: speech.EstimateDuration(req.Text),
		Words:   len(strings.Split(req.Text, " ")),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	var states []queue.State
	for _, value := range r.URL.Query()["state"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			state, ok := queue.ParseState(part)
			if !ok {
				s.writeError(w, http.StatusBadRequest, "unknown state "+part)
				return
			}
			states = append(states, state)
		}
	}
	jobs, err := s.queueSvc.List(r.Context(), states...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QueueListResponse{Jobs: jobs})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queueSvc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	olderThan := s.cfg.Queue.Retention()
	if raw := strings.TrimSpace(r.URL.Query().Get("older_than")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "older_than must be a non-negative duration such as 24h")
			return
		}
		olderThan = parsed
	}
	removed, err := s.workflows.Purge(r.Context(), time.Now().Add(-olderThan))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.logger.Info("queue purged",
		logging.String(logging.FieldEventType, "queue_purged"),
		logging.Int64("removed", removed),
		logging.Duration("older_than", olderThan),
	)
	writeJSON(w, http.StatusOK, PurgeResponse{Removed: removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, HealthView{Running: true, Backend: s.cfg.Queue.Backend})
		return
	}
	writeJSON(w, http.StatusOK, s.health(r.Context()))
}

// writeServiceError maps classified errors to HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrWorkflowFailed), errors.Is(err, workflow.ErrNotRetryable):
		status = http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: services.FailureCode(err)})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "oneof":
			parts = append(parts, field+" must be one of: "+fe.Param())
		default:
			parts = append(parts, field+" failed "+fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}
