package scoring

import (
	"fmt"
	"unicode/utf8"

	"quiz-exercise-service/internal/domain"
)

// ScoreQuestion turns a breakdown into points under the question's scoring policy.
func ScoreQuestion(q domain.Question, b Breakdown) float64 {
	if q.Invalid || !b.Answered || q.Points <= 0 {
		return 0
	}

	policy := q.Scoring
	if b.ForceAllOrNothing || b.CorrectTotal == 0 || policy == "" {
		policy = domain.AllOrNothing
	}

	switch policy {
	case domain.ProportionalWithoutPenalty:
		points := q.Points * float64(b.CorrectMatched) / float64(b.CorrectTotal)
		return clamp(points, q.Points)
	case domain.ProportionalWithPenalty:
		// floor only after the full fraction is computed
		points := q.Points * float64(b.CorrectMatched-b.IncorrectOrExtra) / float64(b.CorrectTotal)
		return clamp(points, q.Points)
	default:
		if b.Perfect() {
			return q.Points
		}
		return 0
	}
}

func clamp(points, max float64) float64 {
	if points < 0 {
		return 0
	}
	if points > max {
		return max
	}
	return points
}

// ScoreSubmission grades every valid question of the exercise. Practice submissions produce unrated results.
func ScoreSubmission(ex domain.Exercise, sub domain.Submission) domain.Result {
	res := domain.Result{
		ExerciseID:     ex.ID,
		ParticipantID:  sub.ParticipantID,
		SubmissionID:   sub.ID,
		MaxPoints:      ex.MaxPoints(),
		Rated:          sub.Type != domain.SubmissionPractice,
		CompletedAt:    sub.SubmittedAt,
		QuestionScores: make([]domain.QuestionScore, 0, len(ex.Questions)),
		Submission:     sub,
	}
	for _, q := range ex.Questions {
		if q.Invalid {
			continue
		}
		answer, _ := sub.Answer(q.ID)
		b := Compare(q, answer)
		points := ScoreQuestion(q, b)
		res.Points += points
		res.QuestionScores = append(res.QuestionScores, domain.QuestionScore{
			QuestionID: q.ID,
			Points:     points,
			Correct:    b.Perfect(),
		})
	}
	if res.MaxPoints > 0 {
		res.Percentage = res.Points / res.MaxPoints * 100
	}
	return res
}

// ValidateSubmission checks that every answer targets a question of the exercise with a matching type,
// that no question is answered twice and that short-answer texts stay within maxTextLength runes.
// A non-positive maxTextLength disables the length bound.
func ValidateSubmission(ex domain.Exercise, sub domain.Submission, maxTextLength int) error {
	seen := make(map[string]struct{}, len(sub.Answers))
	for _, a := range sub.Answers {
		q, ok := ex.Question(a.QuestionID)
		if !ok {
			return fmt.Errorf("answer for %q: %w", a.QuestionID, domain.ErrQuestionNotFound)
		}
		if a.Type != q.Type {
			return fmt.Errorf("answer for %q has type %q, want %q: %w", a.QuestionID, a.Type, q.Type, domain.ErrInvalidSubmission)
		}
		if _, dup := seen[a.QuestionID]; dup {
			return fmt.Errorf("question %q answered twice: %w", a.QuestionID, domain.ErrInvalidSubmission)
		}
		seen[a.QuestionID] = struct{}{}

		if maxTextLength <= 0 {
			continue
		}
		for _, st := range a.SpotTexts {
			if utf8.RuneCountInString(st.Text) > maxTextLength {
				return fmt.Errorf("spot %q: %w", st.SpotID, domain.ErrOversizedAnswer)
			}
		}
	}
	return nil
}
