// Package quiztest holds exercise and submission fixtures shared by tests across packages.
package quiztest

import (
	"time"

	"quiz-exercise-service/internal/domain"
)

// Question ids of ThreeQuestionExercise.
const (
	MCQuestionID  = "mc"
	DnDQuestionID = "dnd"
	SAQuestionID  = "sa"
)

// ThreeQuestionExercise builds a quiz with one question of each type worth 4, 3 and 2 points.
func ThreeQuestionExercise(id string, mode domain.TimingMode, release time.Time, due *time.Time, duration time.Duration) domain.Exercise {
	return domain.Exercise{
		ID:              id,
		Title:           "Three questions",
		Mode:            mode,
		ReleaseDate:     release,
		DueDate:         due,
		DurationSeconds: int(duration / time.Second),
		Questions: []domain.Question{
			{
				ID:      MCQuestionID,
				Type:    domain.MultipleChoice,
				Points:  4,
				Scoring: domain.AllOrNothing,
				MultipleChoice: &domain.MultipleChoiceQuestion{
					Options: []domain.AnswerOption{
						{ID: "mc-a", Text: "right", Correct: true},
						{ID: "mc-b", Text: "wrong", Correct: false},
					},
				},
			},
			{
				ID:      DnDQuestionID,
				Type:    domain.DragAndDrop,
				Points:  3,
				Scoring: domain.AllOrNothing,
				DragAndDrop: &domain.DragAndDropQuestion{
					DragItems:     []domain.DragItem{{ID: "item-1"}, {ID: "item-2"}, {ID: "item-3"}},
					DropLocations: []domain.DropLocation{{ID: "loc-1"}, {ID: "loc-2"}, {ID: "loc-3"}},
					CorrectMappings: []domain.Mapping{
						{DragItemID: "item-1", DropLocationID: "loc-1"},
						{DragItemID: "item-2", DropLocationID: "loc-2"},
						{DragItemID: "item-3", DropLocationID: "loc-3"},
					},
				},
			},
			{
				ID:      SAQuestionID,
				Type:    domain.ShortAnswer,
				Points:  2,
				Scoring: domain.AllOrNothing,
				ShortAnswer: &domain.ShortAnswerQuestion{
					Spots: []domain.Spot{
						{ID: "spot-1", Accepted: []string{"Berlin"}},
						{ID: "spot-2", Accepted: []string{"Munich", "München"}},
					},
				},
			},
		},
	}
}

// MCAnswer selects the correct option when correct is true, the wrong one otherwise.
func MCAnswer(correct bool) domain.SubmittedAnswer {
	selected := "mc-b"
	if correct {
		selected = "mc-a"
	}
	return domain.SubmittedAnswer{QuestionID: MCQuestionID, Type: domain.MultipleChoice, SelectedOptions: []string{selected}}
}

// DnDAnswer places all items correctly, or rotates them by one location.
func DnDAnswer(correct bool) domain.SubmittedAnswer {
	mappings := []domain.Mapping{
		{DragItemID: "item-1", DropLocationID: "loc-1"},
		{DragItemID: "item-2", DropLocationID: "loc-2"},
		{DragItemID: "item-3", DropLocationID: "loc-3"},
	}
	if !correct {
		mappings = []domain.Mapping{
			{DragItemID: "item-1", DropLocationID: "loc-2"},
			{DragItemID: "item-2", DropLocationID: "loc-3"},
			{DragItemID: "item-3", DropLocationID: "loc-1"},
		}
	}
	return domain.SubmittedAnswer{QuestionID: DnDQuestionID, Type: domain.DragAndDrop, Mappings: mappings}
}

// SAAnswer fills both spots correctly, or types wrong words.
func SAAnswer(correct bool) domain.SubmittedAnswer {
	texts := []domain.SpotText{{SpotID: "spot-1", Text: "berlin"}, {SpotID: "spot-2", Text: "München"}}
	if !correct {
		texts = []domain.SpotText{{SpotID: "spot-1", Text: "Paris"}, {SpotID: "spot-2", Text: "Rome"}}
	}
	return domain.SubmittedAnswer{QuestionID: SAQuestionID, Type: domain.ShortAnswer, SpotTexts: texts}
}

// PatternSubmission answers the three questions following the i%2, i%3, i%4 correctness pattern.
func PatternSubmission(exerciseID, participantID string, i int) domain.Submission {
	return domain.Submission{
		ID:            exerciseID + "-" + participantID,
		ExerciseID:    exerciseID,
		ParticipantID: participantID,
		Answers: []domain.SubmittedAnswer{
			MCAnswer(i%2 == 0),
			DnDAnswer(i%3 == 0),
			SAAnswer(i%4 == 0),
		},
	}
}

// Ptr returns a pointer to t.
func Ptr(t time.Time) *time.Time {
	return &t
}
