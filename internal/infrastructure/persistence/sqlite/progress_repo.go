package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// ProgressRepository implements progress.Repository.
type ProgressRepository struct {
	db *DB
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

type lessonRow struct {
	LessonID    string        `db:"lesson_id"`
	Status      string        `db:"status"`
	CompletedAt sql.NullInt64 `db:"completed_at"`
	XPEarned    int           `db:"xp_earned"`
	UpdatedAt   int64         `db:"updated_at"`
}

func (r lessonRow) toDomain() progress.LessonProgress {
	return progress.LessonProgress{
		LessonID:    r.LessonID,
		Status:      progress.LessonStatus(r.Status),
		CompletedAt: fromNullNanos(r.CompletedAt),
		XPEarned:    r.XPEarned,
		UpdatedAt:   fromNanos(r.UpdatedAt),
	}
}

type attemptRow struct {
	ID              string `db:"id"`
	QuizID          string `db:"quiz_id"`
	Score           int    `db:"score"`
	Passed          bool   `db:"passed"`
	CorrectCount    int    `db:"correct_count"`
	TotalQuestions  int    `db:"total_questions"`
	Answers         string `db:"answers"`
	DurationSeconds int    `db:"duration_seconds"`
	XPEarned        int    `db:"xp_earned"`
	AttemptedAt     int64  `db:"attempted_at"`
}

type masteryRow struct {
	VocabularyID   string `db:"vocabulary_id"`
	Level          string `db:"level"`
	CorrectCount   int    `db:"correct_count"`
	IncorrectCount int    `db:"incorrect_count"`
	LastReviewedAt int64  `db:"last_reviewed_at"`
}

type activityRow struct {
	Day              int64 `db:"day"`
	MinutesSpent     int   `db:"minutes_spent"`
	XPEarned         int   `db:"xp_earned"`
	LessonsCompleted int   `db:"lessons_completed"`
	QuizzesCompleted int   `db:"quizzes_completed"`
}

func (r activityRow) toDomain() progress.DailyActivity {
	return progress.DailyActivity{
		Day:              fromNanos(r.Day),
		MinutesSpent:     r.MinutesSpent,
		XPEarned:         r.XPEarned,
		LessonsCompleted: r.LessonsCompleted,
		QuizzesCompleted: r.QuizzesCompleted,
	}
}

const activityColumns = `day, minutes_spent, xp_earned, lessons_completed, quizzes_completed`

func (r *ProgressRepository) Ensure(ctx context.Context, userID string) error {
	now := toNanos(r.db.now())
	_, err := r.db.x.ExecContext(ctx, `
		INSERT INTO progress_aggregates (user_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now, now)
	return classify("progress", "Ensure", err)
}

// Get reads the aggregate and its children inside one transaction.
func (r *ProgressRepository) Get(ctx context.Context, userID string) (*progress.Aggregate, error) {
	var agg *progress.Aggregate
	err := r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		var head struct {
			CreatedAt int64 `db:"created_at"`
			UpdatedAt int64 `db:"updated_at"`
		}
		if err := tx.GetContext(ctx, &head, `
			SELECT created_at, updated_at FROM progress_aggregates WHERE user_id = ?
		`, userID); err != nil {
			return err
		}
		agg = &progress.Aggregate{UserID: userID, CreatedAt: fromNanos(head.CreatedAt), UpdatedAt: fromNanos(head.UpdatedAt)}

		var lessons []lessonRow
		if err := tx.SelectContext(ctx, &lessons, `
			SELECT lesson_id, status, completed_at, xp_earned, updated_at
			FROM lesson_progress WHERE user_id = ? ORDER BY seq
		`, userID); err != nil {
			return err
		}
		for _, l := range lessons {
			agg.Lessons = append(agg.Lessons, l.toDomain())
		}

		var attempts []attemptRow
		if err := tx.SelectContext(ctx, &attempts, `
			SELECT id, quiz_id, score, passed, correct_count, total_questions, answers,
				duration_seconds, xp_earned, attempted_at
			FROM quiz_attempts WHERE user_id = ? ORDER BY seq
		`, userID); err != nil {
			return err
		}
		for _, a := range attempts {
			attempt := progress.QuizAttempt{
				ID:              a.ID,
				QuizID:          a.QuizID,
				Score:           a.Score,
				Passed:          a.Passed,
				CorrectCount:    a.CorrectCount,
				TotalQuestions:  a.TotalQuestions,
				DurationSeconds: a.DurationSeconds,
				XPEarned:        a.XPEarned,
				AttemptedAt:     fromNanos(a.AttemptedAt),
			}
			if err := json.Unmarshal([]byte(a.Answers), &attempt.Answers); err != nil {
				return fmt.Errorf("failed to decode answers of attempt %s: %w", a.ID, err)
			}
			agg.QuizAttempts = append(agg.QuizAttempts, attempt)
		}

		var mastery []masteryRow
		if err := tx.SelectContext(ctx, &mastery, `
			SELECT vocabulary_id, level, correct_count, incorrect_count, last_reviewed_at
			FROM vocabulary_mastery WHERE user_id = ? ORDER BY seq
		`, userID); err != nil {
			return err
		}
		for _, m := range mastery {
			agg.Vocabulary = append(agg.Vocabulary, progress.VocabularyMastery{
				VocabularyID:   m.VocabularyID,
				Level:          progress.MasteryLevel(m.Level),
				CorrectCount:   m.CorrectCount,
				IncorrectCount: m.IncorrectCount,
				LastReviewedAt: fromNanos(m.LastReviewedAt),
			})
		}

		var activity []activityRow
		if err := tx.SelectContext(ctx, &activity, `
			SELECT `+activityColumns+` FROM daily_activity WHERE user_id = ? ORDER BY day
		`, userID); err != nil {
			return err
		}
		for _, a := range activity {
			agg.DailyActivity = append(agg.DailyActivity, a.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, classify("progress", "Get", err)
	}
	return agg, nil
}

func (r *ProgressRepository) GetLesson(ctx context.Context, userID, lessonID string) (*progress.LessonProgress, error) {
	var row lessonRow
	err := r.db.x.GetContext(ctx, &row, `
		SELECT lesson_id, status, completed_at, xp_earned, updated_at
		FROM lesson_progress WHERE user_id = ? AND lesson_id = ?
	`, userID, lessonID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("progress", "GetLesson", err)
	}
	l := row.toDomain()
	return &l, nil
}

// UpsertLesson writes the entry unless the stored one is completed.
func (r *ProgressRepository) UpsertLesson(ctx context.Context, userID string, entry progress.LessonProgress) error {
	res, err := r.db.x.ExecContext(ctx, `
		INSERT INTO lesson_progress (user_id, lesson_id, status, completed_at, xp_earned, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			xp_earned = excluded.xp_earned,
			updated_at = excluded.updated_at
		WHERE lesson_progress.status <> 'completed'
	`, userID, entry.LessonID, string(entry.Status), toNullNanos(entry.CompletedAt), entry.XPEarned, toNanos(entry.UpdatedAt))
	if err != nil {
		return classify("progress", "UpsertLesson", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return classify("progress", "UpsertLesson", err)
	} else if n == 0 {
		return shared.NewDomainError("progress", "UpsertLesson", shared.ErrConflict, "lesson already completed")
	}
	return r.touch(ctx, userID)
}

func (r *ProgressRepository) AppendQuizAttempt(ctx context.Context, userID string, a progress.QuizAttempt) error {
	answers := a.Answers
	if answers == nil {
		answers = []progress.AnswerResult{}
	}
	encoded, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}

	_, err = r.db.x.ExecContext(ctx, `
		INSERT INTO quiz_attempts (
			id, user_id, quiz_id, score, passed, correct_count, total_questions,
			answers, duration_seconds, xp_earned, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, userID, a.QuizID, a.Score, a.Passed, a.CorrectCount, a.TotalQuestions,
		string(encoded), a.DurationSeconds, a.XPEarned, toNanos(a.AttemptedAt))
	if err != nil {
		return classify("progress", "AppendQuizAttempt", err)
	}
	return r.touch(ctx, userID)
}

func (r *ProgressRepository) IncrementReview(ctx context.Context, userID, vocabularyID string, correct bool, at time.Time) (progress.ReviewCounts, error) {
	c, i := 0, 1
	if correct {
		c, i = 1, 0
	}

	var counts struct {
		Correct   int `db:"correct_count"`
		Incorrect int `db:"incorrect_count"`
	}
	err := r.db.x.GetContext(ctx, &counts, `
		INSERT INTO vocabulary_mastery (user_id, vocabulary_id, correct_count, incorrect_count, last_reviewed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, vocabulary_id) DO UPDATE SET
			correct_count = vocabulary_mastery.correct_count + excluded.correct_count,
			incorrect_count = vocabulary_mastery.incorrect_count + excluded.incorrect_count,
			last_reviewed_at = excluded.last_reviewed_at
		RETURNING correct_count, incorrect_count
	`, userID, vocabularyID, c, i, toNanos(at))
	if err != nil {
		return progress.ReviewCounts{}, classify("progress", "IncrementReview", err)
	}
	return progress.ReviewCounts{Correct: counts.Correct, Incorrect: counts.Incorrect}, nil
}

func (r *ProgressRepository) SetMasteryLevel(ctx context.Context, userID, vocabularyID string, counts progress.ReviewCounts, level progress.MasteryLevel) error {
	_, err := r.db.x.ExecContext(ctx, `
		UPDATE vocabulary_mastery SET level = ?
		WHERE user_id = ? AND vocabulary_id = ? AND correct_count = ? AND incorrect_count = ?
	`, string(level), userID, vocabularyID, counts.Correct, counts.Incorrect)
	return classify("progress", "SetMasteryLevel", err)
}

func (r *ProgressRepository) IncrementDailyActivity(ctx context.Context, userID string, day time.Time, d progress.ActivityDelta) (progress.DailyActivity, error) {
	var row activityRow
	err := r.db.x.GetContext(ctx, &row, `
		INSERT INTO daily_activity (user_id, `+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET
			minutes_spent = daily_activity.minutes_spent + excluded.minutes_spent,
			xp_earned = daily_activity.xp_earned + excluded.xp_earned,
			lessons_completed = daily_activity.lessons_completed + excluded.lessons_completed,
			quizzes_completed = daily_activity.quizzes_completed + excluded.quizzes_completed
		RETURNING `+activityColumns,
		userID, toNanos(day), d.MinutesSpent, d.XPEarned, d.LessonsCompleted, d.QuizzesCompleted)
	if err != nil {
		return progress.DailyActivity{}, classify("progress", "IncrementDailyActivity", err)
	}
	return row.toDomain(), nil
}

func (r *ProgressRepository) CountCompletedLessons(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.x.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM lesson_progress WHERE user_id = ? AND status = 'completed'
	`, userID)
	return n, classify("progress", "CountCompletedLessons", err)
}

func (r *ProgressRepository) CountMastered(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.x.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM vocabulary_mastery WHERE user_id = ? AND level = 'mastered'
	`, userID)
	return n, classify("progress", "CountMastered", err)
}

func (r *ProgressRepository) ActivityRange(ctx context.Context, userID string, from, to time.Time) ([]progress.DailyActivity, error) {
	var rows []activityRow
	err := r.db.x.SelectContext(ctx, &rows, `
		SELECT `+activityColumns+` FROM daily_activity
		WHERE user_id = ? AND day >= ? AND day <= ?
		ORDER BY day
	`, userID, toNanos(from), toNanos(to))
	if err != nil {
		return nil, classify("progress", "ActivityRange", err)
	}

	out := make([]progress.DailyActivity, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *ProgressRepository) touch(ctx context.Context, userID string) error {
	_, err := r.db.x.ExecContext(ctx, `
		UPDATE progress_aggregates SET updated_at = ? WHERE user_id = ?
	`, toNanos(r.db.now()), userID)
	return classify("progress", "touch", err)
}
