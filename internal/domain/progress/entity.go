// Package progress contains the per-user progress aggregate: lesson
// progress, the quiz attempt audit trail, vocabulary mastery and daily
// activity buckets. The aggregate is the only place that answers "has this
// user completed lesson X" and "what level is vocabulary Y at".
package progress

import (
	"time"

	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// LessonStatus is the state of one lesson for one user.
type LessonStatus string

const (
	LessonNotStarted LessonStatus = "not_started"
	LessonInProgress LessonStatus = "in_progress"
	LessonCompleted  LessonStatus = "completed"
)

// ParseLessonStatus accepts the canonical names and "started" as an alias
// for in_progress.
func ParseLessonStatus(s string) (LessonStatus, error) {
	switch LessonStatus(s) {
	case LessonNotStarted, LessonInProgress, LessonCompleted:
		return LessonStatus(s), nil
	case "started":
		return LessonInProgress, nil
	default:
		return "", shared.NewDomainError("progress", "ParseLessonStatus", shared.ErrInvalidInput, "unknown lesson status: "+s)
	}
}

// LessonProgress is one entry of the aggregate's lesson list.
// CompletedAt and XPEarned are set once, on completion.
type LessonProgress struct {
	LessonID    string
	Status      LessonStatus
	CompletedAt *time.Time
	XPEarned    int
	UpdatedAt   time.Time
}

// IsCompleted reports whether the lesson has been completed.
func (l LessonProgress) IsCompleted() bool {
	return l.Status == LessonCompleted
}

// CheckTransition validates moving a lesson from current (nil when the
// user has no entry yet) to next. Any move out of completed is a conflict:
// completion is immutable and must never be credited twice.
func CheckTransition(current *LessonProgress, next LessonStatus) error {
	if current == nil || !current.IsCompleted() {
		return nil
	}
	if next == LessonCompleted {
		return shared.NewDomainError("progress", "UpdateLesson", shared.ErrConflict, "lesson already completed")
	}
	return shared.NewDomainError("progress", "UpdateLesson", shared.ErrConflict,
		"completed lesson cannot move back to "+string(next))
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ ATTEMPTS
// ══════════════════════════════════════════════════════════════════════════════

// AnswerResult is the per-question breakdown stored with an attempt.
type AnswerResult struct {
	QuestionID string `json:"question_id"`
	Submitted  string `json:"submitted"`
	Correct    bool   `json:"correct"`
}

// QuizAttempt is an immutable audit record of one submission.
type QuizAttempt struct {
	ID              string
	QuizID          string
	Score           int
	Passed          bool
	CorrectCount    int
	TotalQuestions  int
	Answers         []AnswerResult
	DurationSeconds int
	XPEarned        int
	AttemptedAt     time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// VOCABULARY MASTERY
// ══════════════════════════════════════════════════════════════════════════════

// VocabularyMastery is the review state of one vocabulary item.
type VocabularyMastery struct {
	VocabularyID   string
	Level          MasteryLevel
	CorrectCount   int
	IncorrectCount int
	LastReviewedAt time.Time
}

// Counts returns the review counters.
func (v VocabularyMastery) Counts() ReviewCounts {
	return ReviewCounts{Correct: v.CorrectCount, Incorrect: v.IncorrectCount}
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

// ActivityDelta is an increment applied to one day's bucket.
type ActivityDelta struct {
	MinutesSpent     int
	XPEarned         int
	LessonsCompleted int
	QuizzesCompleted int
}

// Validate rejects negative increments.
func (d ActivityDelta) Validate() error {
	if d.MinutesSpent < 0 || d.XPEarned < 0 || d.LessonsCompleted < 0 || d.QuizzesCompleted < 0 {
		return shared.NewDomainError("progress", "RecordDailyActivity", shared.ErrInvalidInput, "activity counters must be non-negative")
	}
	return nil
}

// IsZero reports whether the delta changes nothing.
func (d ActivityDelta) IsZero() bool {
	return d == ActivityDelta{}
}

// DailyActivity is the accumulated bucket for one calendar day.
// Day is midnight in the engine's configured location.
type DailyActivity struct {
	Day              time.Time
	MinutesSpent     int
	XPEarned         int
	LessonsCompleted int
	QuizzesCompleted int
}

// Add returns the bucket with delta applied.
func (a DailyActivity) Add(d ActivityDelta) DailyActivity {
	a.MinutesSpent += d.MinutesSpent
	a.XPEarned += d.XPEarned
	a.LessonsCompleted += d.LessonsCompleted
	a.QuizzesCompleted += d.QuizzesCompleted
	return a
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Aggregate is the single progress record of one user. It is read as a
// snapshot; mutations go through targeted Repository operations.
type Aggregate struct {
	UserID        string
	Lessons       []LessonProgress // insertion order
	QuizAttempts  []QuizAttempt    // append order
	Vocabulary    []VocabularyMastery
	DailyActivity []DailyActivity // ascending by day
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAggregate returns an empty aggregate for userID.
func NewAggregate(userID string, now time.Time) *Aggregate {
	return &Aggregate{UserID: userID, CreatedAt: now, UpdatedAt: now}
}

// Lesson returns the entry for lessonID, if any.
func (a *Aggregate) Lesson(lessonID string) (LessonProgress, bool) {
	for _, l := range a.Lessons {
		if l.LessonID == lessonID {
			return l, true
		}
	}
	return LessonProgress{}, false
}

// IsLessonCompleted reports whether lessonID has a completed entry.
func (a *Aggregate) IsLessonCompleted(lessonID string) bool {
	l, ok := a.Lesson(lessonID)
	return ok && l.IsCompleted()
}

// CompletedLessonCount counts completed lessons.
func (a *Aggregate) CompletedLessonCount() int {
	n := 0
	for _, l := range a.Lessons {
		if l.IsCompleted() {
			n++
		}
	}
	return n
}

// PendingLessons filters lessonIDs down to those not completed, keeping
// input order.
func (a *Aggregate) PendingLessons(lessonIDs []string) []string {
	completed := make(map[string]struct{}, len(a.Lessons))
	for _, l := range a.Lessons {
		if l.IsCompleted() {
			completed[l.LessonID] = struct{}{}
		}
	}
	pending := make([]string, 0, len(lessonIDs))
	for _, id := range lessonIDs {
		if _, done := completed[id]; !done {
			pending = append(pending, id)
		}
	}
	return pending
}

// Mastery returns the mastery entry for vocabularyID, if any.
func (a *Aggregate) Mastery(vocabularyID string) (VocabularyMastery, bool) {
	for _, v := range a.Vocabulary {
		if v.VocabularyID == vocabularyID {
			return v, true
		}
	}
	return VocabularyMastery{}, false
}

// MasteredCount counts vocabulary items at the mastered level.
func (a *Aggregate) MasteredCount() int {
	n := 0
	for _, v := range a.Vocabulary {
		if v.Level == MasteryMastered {
			n++
		}
	}
	return n
}

// ActivityOn returns the bucket whose day equals day, if any.
func (a *Aggregate) ActivityOn(day time.Time) (DailyActivity, bool) {
	for _, d := range a.DailyActivity {
		if d.Day.Equal(day) {
			return d, true
		}
	}
	return DailyActivity{}, false
}

// TotalQuizXP sums XP earned across all attempts.
func (a *Aggregate) TotalQuizXP() int {
	total := 0
	for _, q := range a.QuizAttempts {
		total += q.XPEarned
	}
	return total
}
