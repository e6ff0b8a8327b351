package cli

import (
	"time"

	"quiz-exercise-service/internal/domain"
)

// sampleExercises seeds the in-memory store when no database is configured; one exercise per timing mode.
func sampleExercises(now time.Time) []domain.Exercise {
	release := now.Truncate(time.Minute)
	due := release.Add(24 * time.Hour)
	questions := []domain.Question{
		{
			ID:      "q1",
			Type:    domain.MultipleChoice,
			Title:   "Which of these are prime?",
			Points:  4,
			Scoring: domain.ProportionalWithPenalty,
			MultipleChoice: &domain.MultipleChoiceQuestion{
				Options: []domain.AnswerOption{
					{ID: "o1", Text: "2", Correct: true},
					{ID: "o2", Text: "4", Correct: false},
					{ID: "o3", Text: "7", Correct: true},
					{ID: "o4", Text: "9", Correct: false},
				},
			},
		},
		{
			ID:      "q2",
			Type:    domain.DragAndDrop,
			Title:   "Match the capitals",
			Points:  3,
			Scoring: domain.ProportionalWithoutPenalty,
			DragAndDrop: &domain.DragAndDropQuestion{
				DragItems:     []domain.DragItem{{ID: "berlin"}, {ID: "paris"}, {ID: "rome"}},
				DropLocations: []domain.DropLocation{{ID: "de"}, {ID: "fr"}, {ID: "it"}},
				CorrectMappings: []domain.Mapping{
					{DragItemID: "berlin", DropLocationID: "de"},
					{DragItemID: "paris", DropLocationID: "fr"},
					{DragItemID: "rome", DropLocationID: "it"},
				},
			},
		},
		{
			ID:      "q3",
			Type:    domain.ShortAnswer,
			Title:   "Name the largest planet",
			Points:  2,
			Scoring: domain.AllOrNothing,
			ShortAnswer: &domain.ShortAnswerQuestion{
				Spots: []domain.Spot{{ID: "s1", Accepted: []string{"Jupiter"}}},
			},
		},
	}

	exercise := func(id, title string, mode domain.TimingMode) domain.Exercise {
		return domain.Exercise{
			ID:              id,
			Title:           title,
			Mode:            mode,
			ReleaseDate:     release,
			DueDate:         &due,
			DurationSeconds: int((15 * time.Minute).Seconds()),
			OpenForPractice: true,
			Questions:       questions,
		}
	}
	return []domain.Exercise{
		exercise("quiz-sync", "Synchronized sample quiz", domain.ModeSynchronized),
		exercise("quiz-batched", "Batched sample quiz", domain.ModeBatched),
		exercise("quiz-individual", "Individual sample quiz", domain.ModeIndividual),
	}
}
