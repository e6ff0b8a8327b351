package domain

import (
	"sort"
	"time"
)

// TimingMode controls how participants are admitted to a quiz.
type TimingMode string

const (
	ModeSynchronized TimingMode = "SYNCHRONIZED"
	ModeIndividual   TimingMode = "INDIVIDUAL"
	ModeBatched      TimingMode = "BATCHED"
)

// ScoringPolicy selects how a question's breakdown turns into points.
type ScoringPolicy string

const (
	AllOrNothing               ScoringPolicy = "ALL_OR_NOTHING"
	ProportionalWithoutPenalty ScoringPolicy = "PROPORTIONAL_WITHOUT_PENALTY"
	ProportionalWithPenalty    ScoringPolicy = "PROPORTIONAL_WITH_PENALTY"
)

// QuestionType tags the variant carried by Question and SubmittedAnswer.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	DragAndDrop    QuestionType = "drag-and-drop"
	ShortAnswer    QuestionType = "short-answer"
)

// SubmissionType records how a submission reached its final state.
type SubmissionType string

const (
	SubmissionManual   SubmissionType = "MANUAL"
	SubmissionTimeout  SubmissionType = "TIMEOUT"
	SubmissionPractice SubmissionType = "PRACTICE"
)

// Exercise is the read-only view of a quiz exercise owned by the store.
type Exercise struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Mode            TimingMode `json:"mode"`
	VisibleDate     *time.Time `json:"visibleDate,omitempty"`
	ReleaseDate     time.Time  `json:"releaseDate"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	DurationSeconds int        `json:"duration"`
	OpenForPractice bool       `json:"openForPractice"`
	Questions       []Question `json:"questions"`
}

// Duration is the working time of one attempt.
func (e Exercise) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

// Question looks up a question by id.
func (e Exercise) Question(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// MaxPoints sums the points of all valid questions.
func (e Exercise) MaxPoints() float64 {
	total := 0.0
	for _, q := range e.Questions {
		if !q.Invalid {
			total += q.Points
		}
	}
	return total
}

// Question is a tagged variant; exactly one payload matching Type is set.
type Question struct {
	ID             string                  `json:"id"`
	Type           QuestionType            `json:"type"`
	Title          string                  `json:"title,omitempty"`
	Points         float64                 `json:"points"`
	Scoring        ScoringPolicy           `json:"scoring"`
	Invalid        bool                    `json:"invalid,omitempty"`
	MultipleChoice *MultipleChoiceQuestion `json:"multipleChoice,omitempty"`
	DragAndDrop    *DragAndDropQuestion    `json:"dragAndDrop,omitempty"`
	ShortAnswer    *ShortAnswerQuestion    `json:"shortAnswer,omitempty"`
}

type AnswerOption struct {
	ID      string `json:"id"`
	Text    string `json:"text,omitempty"`
	Correct bool   `json:"correct"`
	Invalid bool   `json:"invalid,omitempty"`
}

type MultipleChoiceQuestion struct {
	SingleChoice bool           `json:"singleChoice,omitempty"`
	Options      []AnswerOption `json:"options"`
}

type DragItem struct {
	ID      string `json:"id"`
	Invalid bool   `json:"invalid,omitempty"`
}

type DropLocation struct {
	ID      string `json:"id"`
	Invalid bool   `json:"invalid,omitempty"`
}

// Mapping pairs a drag item with the drop location it was placed on.
type Mapping struct {
	DragItemID     string `json:"dragItemId"`
	DropLocationID string `json:"dropLocationId"`
}

type DragAndDropQuestion struct {
	DragItems       []DragItem     `json:"dragItems"`
	DropLocations   []DropLocation `json:"dropLocations"`
	CorrectMappings []Mapping      `json:"correctMappings"`
}

type Spot struct {
	ID       string   `json:"id"`
	Invalid  bool     `json:"invalid,omitempty"`
	Accepted []string `json:"accepted"`
}

type ShortAnswerQuestion struct {
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
	Spots         []Spot `json:"spots"`
}

// SpotText is the text a participant typed into one short-answer spot.
type SpotText struct {
	SpotID string `json:"spotId"`
	Text   string `json:"text"`
}

// SubmittedAnswer is the participant's answer to one question. Type selects which payload is meaningful.
type SubmittedAnswer struct {
	QuestionID      string       `json:"questionId"`
	Type            QuestionType `json:"type"`
	SelectedOptions []string     `json:"selectedOptions,omitempty"`
	Mappings        []Mapping    `json:"mappings,omitempty"`
	SpotTexts       []SpotText   `json:"spotTexts,omitempty"`
}

// Equal compares two answers structurally; ordering and duplicates are ignored.
func (a SubmittedAnswer) Equal(b SubmittedAnswer) bool {
	if a.QuestionID != b.QuestionID || a.Type != b.Type {
		return false
	}
	switch a.Type {
	case MultipleChoice:
		return sameSet(a.SelectedOptions, b.SelectedOptions)
	case DragAndDrop:
		return sameSet(mappingKeys(a.Mappings), mappingKeys(b.Mappings))
	case ShortAnswer:
		return sameSpotTexts(a.SpotTexts, b.SpotTexts)
	}
	return true
}

func mappingKeys(ms []Mapping) []string {
	keys := make([]string, 0, len(ms))
	for _, m := range ms {
		keys = append(keys, m.DragItemID+"\x00"+m.DropLocationID)
	}
	return keys
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, v := range a {
		as[v] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, v := range b {
		bs[v] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for k := range as {
		if _, ok := bs[k]; !ok {
			return false
		}
	}
	return true
}

func sameSpotTexts(a, b []SpotText) bool {
	am := make(map[string]string, len(a))
	for _, st := range a {
		am[st.SpotID] = st.Text
	}
	bm := make(map[string]string, len(b))
	for _, st := range b {
		bm[st.SpotID] = st.Text
	}
	if len(am) != len(bm) {
		return false
	}
	for k, v := range am {
		if other, ok := bm[k]; !ok || other != v {
			return false
		}
	}
	return true
}

// Submission is one participant's attempt at an exercise.
type Submission struct {
	ID            string            `json:"id"`
	ExerciseID    string            `json:"exerciseId"`
	ParticipantID string            `json:"participantId"`
	Submitted     bool              `json:"submitted"`
	Type          SubmissionType    `json:"type,omitempty"`
	SubmittedAt   time.Time         `json:"submittedAt"`
	Answers       []SubmittedAnswer `json:"answers"`
}

// Answer returns the participant's answer for a question, if any.
func (s Submission) Answer(questionID string) (SubmittedAnswer, bool) {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return SubmittedAnswer{}, false
}

// SameAnswers reports whether both submissions carry structurally equal answers.
func (s Submission) SameAnswers(other Submission) bool {
	if len(s.Answers) != len(other.Answers) {
		return false
	}
	for _, a := range s.Answers {
		b, ok := other.Answer(a.QuestionID)
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}

// QuestionScore is the graded outcome of one question inside a result.
type QuestionScore struct {
	QuestionID string  `json:"questionId"`
	Points     float64 `json:"points"`
	Correct    bool    `json:"correct"`
}

// Result is the graded, persisted outcome of a finalized submission.
type Result struct {
	ID             string          `json:"id"`
	ExerciseID     string          `json:"exerciseId"`
	ParticipantID  string          `json:"participantId"`
	SubmissionID   string          `json:"submissionId"`
	Points         float64         `json:"points"`
	MaxPoints      float64         `json:"maxPoints"`
	Percentage     float64         `json:"percentage"`
	Rated          bool            `json:"rated"`
	CompletedAt    time.Time       `json:"completedAt"`
	QuestionScores []QuestionScore `json:"questionScores"`
	Submission     Submission      `json:"submission"`
}

// Batch is an admission window within a quiz exercise.
type Batch struct {
	ID          string     `json:"id"`
	ExerciseID  string     `json:"exerciseId"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	Password    string     `json:"password,omitempty"`
	Participant string     `json:"participant,omitempty"`
}

type ExerciseState string

const (
	ExerciseNotVisible ExerciseState = "NOT_VISIBLE"
	ExerciseVisible    ExerciseState = "VISIBLE"
	ExerciseStarted    ExerciseState = "STARTED"
	ExerciseEnded      ExerciseState = "ENDED"
)

type BatchState string

const (
	BatchScheduled BatchState = "SCHEDULED"
	BatchStarted   BatchState = "STARTED"
	BatchEnded     BatchState = "ENDED"
)

// ParticipationToken is handed out on a successful join.
type ParticipationToken struct {
	ExerciseID    string     `json:"exerciseId"`
	BatchID       string     `json:"batchId"`
	ParticipantID string     `json:"participantId"`
	JoinedAt      time.Time  `json:"joinedAt"`
	StartTime     *time.Time `json:"startTime,omitempty"`
}

// PointCounter is one histogram bucket keyed by the literal point total.
type PointCounter struct {
	Points  float64 `json:"points"`
	Rated   int     `json:"rated"`
	Unrated int     `json:"unrated"`
}

// ComponentCounter counts correct decisions on one option, drop location or spot.
type ComponentCounter struct {
	ID      string `json:"id"`
	Rated   int    `json:"rated"`
	Unrated int    `json:"unrated"`
}

type QuestionStatistic struct {
	QuestionID       string             `json:"questionId"`
	RatedCorrect     int                `json:"ratedCorrect"`
	RatedIncorrect   int                `json:"ratedIncorrect"`
	UnratedCorrect   int                `json:"unratedCorrect"`
	UnratedIncorrect int                `json:"unratedIncorrect"`
	Components       []ComponentCounter `json:"components"`
}

func (q QuestionStatistic) ParticipantsRated() int   { return q.RatedCorrect + q.RatedIncorrect }
func (q QuestionStatistic) ParticipantsUnrated() int { return q.UnratedCorrect + q.UnratedIncorrect }

// Statistics is the per-exercise aggregate shown to instructors.
type Statistics struct {
	ExerciseID          string              `json:"exerciseId"`
	ParticipantsRated   int                 `json:"participantsRated"`
	ParticipantsUnrated int                 `json:"participantsUnrated"`
	PointCounters       []PointCounter      `json:"pointCounters"`
	Questions           []QuestionStatistic `json:"questions"`
}

// Bucket returns the histogram bucket for a point total.
func (s Statistics) Bucket(points float64) (PointCounter, bool) {
	for _, pc := range s.PointCounters {
		if pc.Points == points {
			return pc, true
		}
	}
	return PointCounter{}, false
}

// Question returns the counters of one question.
func (s Statistics) Question(questionID string) (QuestionStatistic, bool) {
	for _, q := range s.Questions {
		if q.QuestionID == questionID {
			return q, true
		}
	}
	return QuestionStatistic{}, false
}

// Clone deep-copies the statistics so readers never share slices with the writer.
func (s Statistics) Clone() Statistics {
	out := Statistics{
		ExerciseID:          s.ExerciseID,
		ParticipantsRated:   s.ParticipantsRated,
		ParticipantsUnrated: s.ParticipantsUnrated,
		PointCounters:       append([]PointCounter(nil), s.PointCounters...),
		Questions:           make([]QuestionStatistic, len(s.Questions)),
	}
	for i, q := range s.Questions {
		q.Components = append([]ComponentCounter(nil), q.Components...)
		out.Questions[i] = q
	}
	return out
}

// SortPointCounters keeps the histogram ordered by points ascending.
func (s *Statistics) SortPointCounters() {
	sort.Slice(s.PointCounters, func(i, j int) bool {
		return s.PointCounters[i].Points < s.PointCounters[j].Points
	})
}
