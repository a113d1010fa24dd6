package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/itlingo/progress-engine/internal/domain/progress"
	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// One row per aggregate plus child tables for lessons, quiz attempts,
// vocabulary mastery and daily activity.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Ensure creates the aggregate row if missing. An unknown user is NotFound.
func (r *ProgressRepository) Ensure(ctx context.Context, userID string) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO progress_aggregates (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return classify("progress", "Ensure", err)
}

// Get loads the aggregate and all its entries from one snapshot.
func (r *ProgressRepository) Get(ctx context.Context, userID string) (*progress.Aggregate, error) {
	var agg *progress.Aggregate

	err := r.conn.WithTx(ctx, snapshotTx, func(tx pgx.Tx) error {
		agg = &progress.Aggregate{UserID: userID}
		err := tx.QueryRow(ctx, `
			SELECT created_at, updated_at FROM progress_aggregates WHERE user_id = $1
		`, userID).Scan(&agg.CreatedAt, &agg.UpdatedAt)
		if err != nil {
			return err
		}

		if agg.Lessons, err = queryLessons(ctx, tx, userID); err != nil {
			return err
		}
		if agg.QuizAttempts, err = queryAttempts(ctx, tx, userID); err != nil {
			return err
		}
		if agg.Vocabulary, err = queryMastery(ctx, tx, userID); err != nil {
			return err
		}
		agg.DailyActivity, err = queryActivity(ctx, tx, userID, nil, nil)
		return err
	})
	if err != nil {
		return nil, classify("progress", "Get", err)
	}
	return agg, nil
}

// GetLesson returns the lesson entry or nil.
func (r *ProgressRepository) GetLesson(ctx context.Context, userID, lessonID string) (*progress.LessonProgress, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT lesson_id, status, completed_at, xp_earned, updated_at
		FROM lesson_progress
		WHERE user_id = $1 AND lesson_id = $2
	`, userID, lessonID)

	l, err := scanLesson(row)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("progress", "GetLesson", err)
	}
	return &l, nil
}

// UpsertLesson writes the entry unless the stored one is already completed,
// in which case the result is Conflict.
func (r *ProgressRepository) UpsertLesson(ctx context.Context, userID string, entry progress.LessonProgress) error {
	err := r.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO lesson_progress (user_id, lesson_id, status, completed_at, xp_earned, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, lesson_id) DO UPDATE SET
				status = EXCLUDED.status,
				completed_at = EXCLUDED.completed_at,
				xp_earned = EXCLUDED.xp_earned,
				updated_at = EXCLUDED.updated_at
			WHERE lesson_progress.status <> 'completed'
		`, userID, entry.LessonID, string(entry.Status), entry.CompletedAt, entry.XPEarned, entry.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.NewDomainError("progress", "UpsertLesson", shared.ErrConflict, "lesson already completed")
		}
		return touch(ctx, tx, userID)
	})
	return classify("progress", "UpsertLesson", err)
}

// AppendQuizAttempt inserts one attempt.
func (r *ProgressRepository) AppendQuizAttempt(ctx context.Context, userID string, a progress.QuizAttempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	err = r.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO quiz_attempts (
				id, user_id, quiz_id, score, passed, correct_count, total_questions,
				answers, duration_seconds, xp_earned, attempted_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, a.ID, userID, a.QuizID, a.Score, a.Passed, a.CorrectCount, a.TotalQuestions,
			answers, a.DurationSeconds, a.XPEarned, a.AttemptedAt)
		if err != nil {
			return err
		}
		return touch(ctx, tx, userID)
	})
	return classify("progress", "AppendQuizAttempt", err)
}

// IncrementReview bumps one counter atomically and returns the new counts.
func (r *ProgressRepository) IncrementReview(ctx context.Context, userID, vocabularyID string, correct bool, at time.Time) (progress.ReviewCounts, error) {
	inc := progress.ReviewCounts{}.Apply(correct)

	var counts progress.ReviewCounts
	err := r.conn.QueryRow(ctx, `
		INSERT INTO vocabulary_mastery (user_id, vocabulary_id, level, correct_count, incorrect_count, last_reviewed_at)
		VALUES ($1, $2, 'learning', $3, $4, $5)
		ON CONFLICT (user_id, vocabulary_id) DO UPDATE SET
			correct_count = vocabulary_mastery.correct_count + EXCLUDED.correct_count,
			incorrect_count = vocabulary_mastery.incorrect_count + EXCLUDED.incorrect_count,
			last_reviewed_at = EXCLUDED.last_reviewed_at
		RETURNING correct_count, incorrect_count
	`, userID, vocabularyID, inc.Correct, inc.Incorrect, at).Scan(&counts.Correct, &counts.Incorrect)
	if err != nil {
		return progress.ReviewCounts{}, classify("progress", "IncrementReview", err)
	}
	return counts, nil
}

// SetMasteryLevel stores level only if the counts still match.
func (r *ProgressRepository) SetMasteryLevel(ctx context.Context, userID, vocabularyID string, counts progress.ReviewCounts, level progress.MasteryLevel) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE vocabulary_mastery SET level = $5
		WHERE user_id = $1 AND vocabulary_id = $2 AND correct_count = $3 AND incorrect_count = $4
	`, userID, vocabularyID, counts.Correct, counts.Incorrect, string(level))
	return classify("progress", "SetMasteryLevel", err)
}

// IncrementDailyActivity adds delta to the (user, day) bucket.
func (r *ProgressRepository) IncrementDailyActivity(ctx context.Context, userID string, day time.Time, d progress.ActivityDelta) (progress.DailyActivity, error) {
	row := r.conn.QueryRow(ctx, `
		INSERT INTO daily_activity (user_id, day, minutes_spent, xp_earned, lessons_completed, quizzes_completed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, day) DO UPDATE SET
			minutes_spent = daily_activity.minutes_spent + EXCLUDED.minutes_spent,
			xp_earned = daily_activity.xp_earned + EXCLUDED.xp_earned,
			lessons_completed = daily_activity.lessons_completed + EXCLUDED.lessons_completed,
			quizzes_completed = daily_activity.quizzes_completed + EXCLUDED.quizzes_completed
		RETURNING day, minutes_spent, xp_earned, lessons_completed, quizzes_completed
	`, userID, day, d.MinutesSpent, d.XPEarned, d.LessonsCompleted, d.QuizzesCompleted)

	bucket, err := scanActivity(row)
	if err != nil {
		return progress.DailyActivity{}, classify("progress", "IncrementDailyActivity", err)
	}
	return bucket, nil
}

// CountCompletedLessons counts completed lesson entries.
func (r *ProgressRepository) CountCompletedLessons(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `
		SELECT count(*) FROM lesson_progress WHERE user_id = $1 AND status = 'completed'
	`, userID).Scan(&n)
	return n, classify("progress", "CountCompletedLessons", err)
}

// CountMastered counts mastered vocabulary entries.
func (r *ProgressRepository) CountMastered(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `
		SELECT count(*) FROM vocabulary_mastery WHERE user_id = $1 AND level = 'mastered'
	`, userID).Scan(&n)
	return n, classify("progress", "CountMastered", err)
}

// ActivityRange returns buckets with from <= day <= to, ascending.
func (r *ProgressRepository) ActivityRange(ctx context.Context, userID string, from, to time.Time) ([]progress.DailyActivity, error) {
	days, err := queryActivity(ctx, r.conn, userID, &from, &to)
	if err != nil {
		return nil, classify("progress", "ActivityRange", err)
	}
	return days, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func touch(ctx context.Context, q querier, userID string) error {
	_, err := q.Exec(ctx, `UPDATE progress_aggregates SET updated_at = NOW() WHERE user_id = $1`, userID)
	return err
}

func scanLesson(row pgx.Row) (progress.LessonProgress, error) {
	var l progress.LessonProgress
	var status string
	if err := row.Scan(&l.LessonID, &status, &l.CompletedAt, &l.XPEarned, &l.UpdatedAt); err != nil {
		return l, err
	}
	l.Status = progress.LessonStatus(status)
	return l, nil
}

func scanActivity(row pgx.Row) (progress.DailyActivity, error) {
	var d progress.DailyActivity
	err := row.Scan(&d.Day, &d.MinutesSpent, &d.XPEarned, &d.LessonsCompleted, &d.QuizzesCompleted)
	return d, err
}

func queryLessons(ctx context.Context, q querier, userID string) ([]progress.LessonProgress, error) {
	rows, err := q.Query(ctx, `
		SELECT lesson_id, status, completed_at, xp_earned, updated_at
		FROM lesson_progress WHERE user_id = $1 ORDER BY seq
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progress.LessonProgress
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func queryAttempts(ctx context.Context, q querier, userID string) ([]progress.QuizAttempt, error) {
	rows, err := q.Query(ctx, `
		SELECT id, quiz_id, score, passed, correct_count, total_questions,
		       answers, duration_seconds, xp_earned, attempted_at
		FROM quiz_attempts WHERE user_id = $1 ORDER BY attempted_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progress.QuizAttempt
	for rows.Next() {
		var a progress.QuizAttempt
		var answers []byte
		if err := rows.Scan(&a.ID, &a.QuizID, &a.Score, &a.Passed, &a.CorrectCount, &a.TotalQuestions,
			&answers, &a.DurationSeconds, &a.XPEarned, &a.AttemptedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, shared.WrapError("progress", "Get", shared.ErrDataIntegrity, "corrupt answers for attempt "+a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func queryMastery(ctx context.Context, q querier, userID string) ([]progress.VocabularyMastery, error) {
	rows, err := q.Query(ctx, `
		SELECT vocabulary_id, level, correct_count, incorrect_count, last_reviewed_at
		FROM vocabulary_mastery WHERE user_id = $1 ORDER BY seq
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progress.VocabularyMastery
	for rows.Next() {
		var v progress.VocabularyMastery
		var level string
		if err := rows.Scan(&v.VocabularyID, &level, &v.CorrectCount, &v.IncorrectCount, &v.LastReviewedAt); err != nil {
			return nil, err
		}
		v.Level = progress.MasteryLevel(level)
		out = append(out, v)
	}
	return out, rows.Err()
}

func queryActivity(ctx context.Context, q querier, userID string, from, to *time.Time) ([]progress.DailyActivity, error) {
	rows, err := q.Query(ctx, `
		SELECT day, minutes_spent, xp_earned, lessons_completed, quizzes_completed
		FROM daily_activity
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR day >= $2)
		  AND ($3::timestamptz IS NULL OR day <= $3)
		ORDER BY day
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progress.DailyActivity
	for rows.Next() {
		d, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
