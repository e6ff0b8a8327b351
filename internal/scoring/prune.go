package scoring

import "quiz-exercise-service/internal/domain"

// PruneSubmission drops answers, selections, placements and spot texts that refer to questions or
// components no longer part of ex. Components that still exist but are flagged invalid are kept.
func PruneSubmission(ex domain.Exercise, sub domain.Submission) domain.Submission {
	out := sub
	out.Answers = make([]domain.SubmittedAnswer, 0, len(sub.Answers))
	for _, a := range sub.Answers {
		q, ok := ex.Question(a.QuestionID)
		if !ok || q.Type != a.Type {
			continue
		}
		out.Answers = append(out.Answers, pruneAnswer(q, a))
	}
	return out
}

func pruneAnswer(q domain.Question, a domain.SubmittedAnswer) domain.SubmittedAnswer {
	out := domain.SubmittedAnswer{QuestionID: a.QuestionID, Type: a.Type}
	switch {
	case q.MultipleChoice != nil:
		known := make(map[string]struct{}, len(q.MultipleChoice.Options))
		for _, o := range q.MultipleChoice.Options {
			known[o.ID] = struct{}{}
		}
		for _, id := range a.SelectedOptions {
			if _, ok := known[id]; ok {
				out.SelectedOptions = append(out.SelectedOptions, id)
			}
		}
	case q.DragAndDrop != nil:
		items := make(map[string]struct{}, len(q.DragAndDrop.DragItems))
		for _, it := range q.DragAndDrop.DragItems {
			items[it.ID] = struct{}{}
		}
		locations := make(map[string]struct{}, len(q.DragAndDrop.DropLocations))
		for _, loc := range q.DragAndDrop.DropLocations {
			locations[loc.ID] = struct{}{}
		}
		for _, m := range a.Mappings {
			_, okItem := items[m.DragItemID]
			_, okLoc := locations[m.DropLocationID]
			if okItem && okLoc {
				out.Mappings = append(out.Mappings, m)
			}
		}
	case q.ShortAnswer != nil:
		spots := make(map[string]struct{}, len(q.ShortAnswer.Spots))
		for _, s := range q.ShortAnswer.Spots {
			spots[s.ID] = struct{}{}
		}
		for _, st := range a.SpotTexts {
			if _, ok := spots[st.SpotID]; ok {
				out.SpotTexts = append(out.SpotTexts, st)
			}
		}
	}
	return out
}
