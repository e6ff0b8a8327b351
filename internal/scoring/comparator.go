package scoring

import (
	"strings"

	"quiz-exercise-service/internal/domain"
)

// Breakdown is the correctness summary of one answer against its question.
type Breakdown struct {
	Answered         bool
	CorrectMatched   int
	IncorrectOrExtra int
	Missing          int
	CorrectTotal     int
	// ForceAllOrNothing is set for single-choice questions with more than one selection.
	ForceAllOrNothing bool
	// Components maps every valid option, drop location or spot to whether it was decided correctly.
	Components map[string]bool
}

// Perfect reports whether nothing is wrong, extra or missing.
func (b Breakdown) Perfect() bool {
	return b.Answered && b.IncorrectOrExtra == 0 && b.Missing == 0 && b.CorrectMatched == b.CorrectTotal
}

// Compare dispatches on the question type. An answer for another question or of another type
// is compared as if nothing was answered.
func Compare(q domain.Question, a domain.SubmittedAnswer) Breakdown {
	if a.QuestionID != q.ID || a.Type != q.Type {
		a = domain.SubmittedAnswer{QuestionID: q.ID, Type: q.Type}
		b := compareByType(q, a)
		b.Answered = false
		return b
	}
	b := compareByType(q, a)
	b.Answered = true
	return b
}

func compareByType(q domain.Question, a domain.SubmittedAnswer) Breakdown {
	switch q.Type {
	case domain.MultipleChoice:
		return compareMultipleChoice(q.MultipleChoice, a.SelectedOptions)
	case domain.DragAndDrop:
		return compareDragAndDrop(q.DragAndDrop, a.Mappings)
	case domain.ShortAnswer:
		return compareShortAnswer(q.ShortAnswer, a.SpotTexts)
	}
	return Breakdown{Components: map[string]bool{}}
}

func compareMultipleChoice(q *domain.MultipleChoiceQuestion, selected []string) Breakdown {
	b := Breakdown{Components: map[string]bool{}}
	if q == nil {
		return b
	}

	known := make(map[string]domain.AnswerOption, len(q.Options))
	for _, o := range q.Options {
		known[o.ID] = o
	}
	chosen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := known[id]; ok {
			chosen[id] = struct{}{}
		}
	}
	if q.SingleChoice && len(chosen) > 1 {
		b.ForceAllOrNothing = true
	}

	for _, o := range q.Options {
		if o.Invalid {
			continue
		}
		_, isChosen := chosen[o.ID]
		switch {
		case o.Correct && isChosen:
			b.CorrectMatched++
		case o.Correct:
			b.Missing++
		case isChosen:
			b.IncorrectOrExtra++
		}
		if o.Correct {
			b.CorrectTotal++
		}
		b.Components[o.ID] = isChosen == o.Correct
	}
	return b
}

// compareDragAndDrop counts per drop location: a location is matched when one of its correct items was
// placed on it. Every other valid placement is wrong or extra. Invalid items and locations are dropped
// from both sides first.
func compareDragAndDrop(q *domain.DragAndDropQuestion, submitted []domain.Mapping) Breakdown {
	b := Breakdown{Components: map[string]bool{}}
	if q == nil {
		return b
	}

	validItems := make(map[string]struct{}, len(q.DragItems))
	for _, it := range q.DragItems {
		if !it.Invalid {
			validItems[it.ID] = struct{}{}
		}
	}
	validLocations := make(map[string]struct{}, len(q.DropLocations))
	for _, loc := range q.DropLocations {
		if !loc.Invalid {
			validLocations[loc.ID] = struct{}{}
		}
	}
	valid := func(m domain.Mapping) bool {
		_, okItem := validItems[m.DragItemID]
		_, okLoc := validLocations[m.DropLocationID]
		return okItem && okLoc
	}

	correctFor := make(map[string]map[string]struct{})
	for _, m := range q.CorrectMappings {
		if !valid(m) {
			continue
		}
		if correctFor[m.DropLocationID] == nil {
			correctFor[m.DropLocationID] = make(map[string]struct{})
		}
		correctFor[m.DropLocationID][m.DragItemID] = struct{}{}
	}
	b.CorrectTotal = len(correctFor)

	satisfied := make(map[string]bool)
	wrongAt := make(map[string]bool)
	seen := make(map[domain.Mapping]struct{}, len(submitted))
	for _, m := range submitted {
		if !valid(m) {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}

		items := correctFor[m.DropLocationID]
		if _, ok := items[m.DragItemID]; ok && !satisfied[m.DropLocationID] {
			satisfied[m.DropLocationID] = true
			b.CorrectMatched++
			continue
		}
		b.IncorrectOrExtra++
		wrongAt[m.DropLocationID] = true
	}
	b.Missing = b.CorrectTotal - b.CorrectMatched

	for _, loc := range q.DropLocations {
		if loc.Invalid {
			continue
		}
		if _, expectsItem := correctFor[loc.ID]; expectsItem {
			b.Components[loc.ID] = satisfied[loc.ID] && !wrongAt[loc.ID]
		} else {
			b.Components[loc.ID] = !wrongAt[loc.ID]
		}
	}
	return b
}

func compareShortAnswer(q *domain.ShortAnswerQuestion, texts []domain.SpotText) Breakdown {
	b := Breakdown{Components: map[string]bool{}}
	if q == nil {
		return b
	}

	typed := make(map[string]string, len(texts))
	for _, st := range texts {
		typed[st.SpotID] = st.Text
	}

	for _, spot := range q.Spots {
		if spot.Invalid {
			continue
		}
		b.CorrectTotal++
		text := strings.TrimSpace(typed[spot.ID])
		switch {
		case text == "":
			b.Missing++
			b.Components[spot.ID] = false
		case acceptsText(spot, text, q.CaseSensitive):
			b.CorrectMatched++
			b.Components[spot.ID] = true
		default:
			b.IncorrectOrExtra++
			b.Components[spot.ID] = false
		}
	}
	return b
}

func acceptsText(spot domain.Spot, text string, caseSensitive bool) bool {
	for _, accepted := range spot.Accepted {
		accepted = strings.TrimSpace(accepted)
		if caseSensitive {
			if accepted == text {
				return true
			}
		} else if strings.EqualFold(accepted, text) {
			return true
		}
	}
	return false
}
