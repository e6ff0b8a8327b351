package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"quiz-exercise-service/internal/domain"
)

// JsonResponse is the envelope of every REST response.
type JsonResponse struct {
	Status  string `json:"status"` // "success" or "error"
	Data    any    `json:"data,omitempty"`
	ErrCode string `json:"code,omitempty"`
	ErrMsg  string `json:"message,omitempty"`
}

func writeSuccessJson(w http.ResponseWriter, data any) {
	resp := JsonResponse{
		Status: "success",
		Data:   data,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func writeErrorJson(w http.ResponseWriter, errMsg string, statusCode int, errCode string) {
	resp := JsonResponse{
		Status:  "error",
		ErrMsg:  errMsg,
		ErrCode: errCode,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

type errorKind struct {
	err    error
	status int
	code   string
}

var errorKinds = []errorKind{
	{domain.ErrExerciseNotFound, http.StatusNotFound, "exercise_not_found"},
	{domain.ErrBatchNotFound, http.StatusNotFound, "batch_not_found"},
	{domain.ErrQuestionNotFound, http.StatusNotFound, "question_not_found"},
	{domain.ErrInvalidSubmission, http.StatusBadRequest, "invalid_submission"},
	{domain.ErrOversizedAnswer, http.StatusBadRequest, "oversized_answer"},
	{domain.ErrInvalidMode, http.StatusBadRequest, "invalid_mode"},
	{domain.ErrNotStarted, http.StatusForbidden, "not_started"},
	{domain.ErrSubmissionClosed, http.StatusForbidden, "submission_closed"},
	{domain.ErrNotJoinable, http.StatusForbidden, "not_joinable"},
	{domain.ErrWrongPassword, http.StatusForbidden, "wrong_password"},
	{domain.ErrNotEnded, http.StatusForbidden, "not_ended"},
	{domain.ErrPracticeNotAllowed, http.StatusForbidden, "practice_not_allowed"},
	{domain.ErrAlreadySubmitted, http.StatusConflict, "already_submitted"},
	{domain.ErrAlreadyJoined, http.StatusConflict, "already_joined"},
	{domain.ErrAlreadyStarted, http.StatusConflict, "already_started"},
}

// classify maps a service error to its HTTP status and error code.
func classify(err error) (int, string, bool) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.code, true
		}
	}
	return http.StatusInternalServerError, "", false
}

func handleError(logger *slog.Logger, w http.ResponseWriter, err error) {
	status, code, known := classify(err)
	if !known {
		logger.Error("internal server error", "error", err)
		writeErrorJson(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError, "")
		return
	}
	logger.Warn("service error", "error", err, "code", code)
	writeErrorJson(w, err.Error(), status, code)
}
