package domain

import "errors"

var (
	// ErrExerciseNotFound is returned when the exercise does not exist (or was deleted).
	ErrExerciseNotFound = errors.New("quiz exercise not found")
	// ErrBatchNotFound indicates an unknown batch id.
	ErrBatchNotFound = errors.New("quiz batch not found")
	// ErrQuestionNotFound indicates a question id that is not part of the exercise.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrAlreadySubmitted is returned when a participant writes after their submission was finalized.
	ErrAlreadySubmitted = errors.New("submission already submitted")
	// ErrNotStarted is returned when the participant has not been admitted yet.
	ErrNotStarted = errors.New("quiz has not started")
	// ErrSubmissionClosed is returned when the participant's working time is over.
	ErrSubmissionClosed = errors.New("quiz is no longer accepting submissions")
	// ErrWrongPassword indicates a batch password mismatch.
	ErrWrongPassword = errors.New("wrong batch password")
	// ErrAlreadyJoined is returned on a second join of the same batch.
	ErrAlreadyJoined = errors.New("participant already joined this quiz")
	// ErrNotJoinable is returned when the batch ended or the due date passed.
	ErrNotJoinable = errors.New("quiz batch is not joinable")
	// ErrInvalidMode indicates an operation that the exercise's timing mode does not support.
	ErrInvalidMode = errors.New("operation not supported for this quiz mode")
	// ErrAlreadyStarted is returned when starting something that already started.
	ErrAlreadyStarted = errors.New("quiz already started")
	// ErrNotEnded is returned by operations that need the quiz to be over.
	ErrNotEnded = errors.New("quiz has not ended yet")
	// ErrPracticeNotAllowed is returned when practice mode is closed for the exercise.
	ErrPracticeNotAllowed = errors.New("quiz is not open for practice")

	// ErrOversizedAnswer is returned when a submitted text exceeds the configured bound.
	ErrOversizedAnswer = errors.New("submitted answer text is too long")
	// ErrInvalidSubmission indicates a malformed submission payload.
	ErrInvalidSubmission = errors.New("invalid submission")
)
