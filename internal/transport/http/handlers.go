package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"

	"quiz-exercise-service/internal/domain"
)

type submissionRequest struct {
	Answers []domain.SubmittedAnswer `json:"answers"`
}

func (req submissionRequest) submission() domain.Submission {
	return domain.Submission{Answers: req.Answers}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorJson(w, "malformed request body", http.StatusBadRequest, "bad_request")
		return false
	}
	return true
}

func participant(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(participantHeader)
	if id == "" {
		writeErrorJson(w, "missing "+participantHeader+" header", http.StatusBadRequest, "missing_participant")
		return "", false
	}
	return id, true
}

func (s *Server) saveLive(w http.ResponseWriter, r *http.Request) {
	s.live(w, r, false)
}

func (s *Server) submitLive(w http.ResponseWriter, r *http.Request) {
	s.live(w, r, true)
}

func (s *Server) live(w http.ResponseWriter, r *http.Request, submit bool) {
	logger := httplog.LogEntry(r.Context())
	participantID, ok := participant(w, r)
	if !ok {
		return
	}
	var req submissionRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := s.service.SaveOrSubmitLive(r.Context(), chi.URLParam(r, "exerciseID"), participantID, req.submission(), submit)
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, sub)
}

func (s *Server) submitPreview(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	var req submissionRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.service.SubmitPreview(r.Context(), chi.URLParam(r, "exerciseID"), req.submission())
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, res)
}

func (s *Server) submitPractice(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	participantID, ok := participant(w, r)
	if !ok {
		return
	}
	var req submissionRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.service.SubmitPractice(r.Context(), chi.URLParam(r, "exerciseID"), participantID, req.submission())
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, res)
}

func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	type joinRequest struct {
		BatchID  string `json:"batchId"`
		Password string `json:"password"`
	}

	logger := httplog.LogEntry(r.Context())
	participantID, ok := participant(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := s.service.JoinBatch(r.Context(), chi.URLParam(r, "exerciseID"), req.BatchID, req.Password, participantID)
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, token)
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	batches, err := s.service.Batches(r.Context(), chi.URLParam(r, "exerciseID"))
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, batches)
}

func (s *Server) addBatch(w http.ResponseWriter, r *http.Request) {
	type addBatchRequest struct {
		StartTime *time.Time `json:"startTime"`
		Password  string     `json:"password"`
	}

	logger := httplog.LogEntry(r.Context())
	var req addBatchRequest
	if !decode(w, r, &req) {
		return
	}
	b, err := s.service.AddBatch(r.Context(), chi.URLParam(r, "exerciseID"), req.StartTime, req.Password)
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, b)
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	b, err := s.service.StartBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, b)
}

func (s *Server) startNow(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	b, err := s.service.StartNow(r.Context(), chi.URLParam(r, "exerciseID"))
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, b)
}

// endQuiz ends the quiz at the given instant, or right away when the body is empty.
func (s *Server) endQuiz(w http.ResponseWriter, r *http.Request) {
	type endRequest struct {
		At *time.Time `json:"at"`
	}

	logger := httplog.LogEntry(r.Context())
	var req endRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	ex, err := s.service.EndQuiz(r.Context(), chi.URLParam(r, "exerciseID"), at)
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, ex)
}

func (s *Server) exerciseState(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	state, err := s.service.ExerciseState(r.Context(), chi.URLParam(r, "exerciseID"))
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, map[string]domain.ExerciseState{"state": state})
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	stats, err := s.service.Statistics(r.Context(), chi.URLParam(r, "exerciseID"))
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, stats)
}

func (s *Server) recalculate(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	stats, err := s.service.RecalculateStatistics(r.Context(), chi.URLParam(r, "exerciseID"))
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, stats)
}

func (s *Server) reEvaluate(w http.ResponseWriter, r *http.Request) {
	type reEvaluateRequest struct {
		Questions []domain.Question `json:"questions"`
	}

	logger := httplog.LogEntry(r.Context())
	var req reEvaluateRequest
	if !decode(w, r, &req) {
		return
	}
	stats, err := s.service.ReEvaluate(r.Context(), chi.URLParam(r, "exerciseID"), req.Questions)
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, stats)
}

func (s *Server) processOnce(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	report, err := s.service.ProcessOnce(r.Context())
	if err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, report)
}

func (s *Server) clearExercise(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	if err := s.service.ClearQuizData(r.Context(), chi.URLParam(r, "exerciseID")); err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, nil)
}

func (s *Server) clearAll(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	if err := s.service.ClearAllQuizData(r.Context()); err != nil {
		handleError(logger, w, err)
		return
	}
	writeSuccessJson(w, nil)
}
