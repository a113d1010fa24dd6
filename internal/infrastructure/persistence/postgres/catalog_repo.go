package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
)

// runningAverageSQL folds $2 into (average_score, total) with half-up
// rounding in integer arithmetic. Both sides of SET see the old row.
const runningAverageSQL = `((average_score * %[1]s + $2) * 2 + %[1]s + 1) / (2 * (%[1]s + 1))`

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// QuizRepository implements quiz.Repository for PostgreSQL.
type QuizRepository struct {
	conn *Connection
}

var _ quiz.Repository = (*QuizRepository)(nil)

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(conn *Connection) *QuizRepository {
	return &QuizRepository{conn: conn}
}

// Get returns the quiz with questions ordered by position.
func (r *QuizRepository) Get(ctx context.Context, id string) (*quiz.Quiz, error) {
	q := &quiz.Quiz{}
	err := r.conn.QueryRow(ctx, `
		SELECT id, lesson_id, title, passing_score, xp_reward, is_published, total_attempts, average_score
		FROM quizzes WHERE id = $1
	`, id).Scan(&q.ID, &q.LessonID, &q.Title, &q.PassingScore, &q.XPReward, &q.IsPublished,
		&q.Stats.TotalAttempts, &q.Stats.AverageScore)
	if err != nil {
		return nil, classify("quiz", "Get", err)
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, prompt, options, correct_answer, points, position
		FROM quiz_questions WHERE quiz_id = $1 ORDER BY position, id
	`, id)
	if err != nil {
		return nil, classify("quiz", "Get", err)
	}
	defer rows.Close()

	for rows.Next() {
		var question quiz.Question
		var options []byte
		if err := rows.Scan(&question.ID, &question.Prompt, &options, &question.CorrectAnswer,
			&question.Points, &question.Position); err != nil {
			return nil, classify("quiz", "Get", err)
		}
		if err := json.Unmarshal(options, &question.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options of question %s: %w", question.ID, err)
		}
		q.Questions = append(q.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("quiz", "Get", err)
	}
	return q, nil
}

// RecordAttempt folds score into the quiz stats in one statement.
func (r *QuizRepository) RecordAttempt(ctx context.Context, id string, score int) (quiz.Stats, error) {
	query := fmt.Sprintf(`
		UPDATE quizzes SET
			average_score = `+runningAverageSQL+`,
			total_attempts = total_attempts + 1
		WHERE id = $1
		RETURNING total_attempts, average_score
	`, "total_attempts")

	var s quiz.Stats
	if err := r.conn.QueryRow(ctx, query, id, score).Scan(&s.TotalAttempts, &s.AverageScore); err != nil {
		return quiz.Stats{}, classify("quiz", "RecordAttempt", err)
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements catalog.Repository for PostgreSQL.
type CatalogRepository struct {
	conn *Connection
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// GetLesson returns a lesson by id.
func (r *CatalogRepository) GetLesson(ctx context.Context, id string) (*catalog.Lesson, error) {
	var l catalog.Lesson
	err := r.conn.QueryRow(ctx, `
		SELECT id, topic_id, title, xp_reward, prerequisites, is_published
		FROM lessons WHERE id = $1
	`, id).Scan(&l.ID, &l.TopicID, &l.Title, &l.XPReward, &l.Prerequisites, &l.IsPublished)
	if err != nil {
		return nil, classify("catalog", "GetLesson", err)
	}
	return &l, nil
}

const vocabularyColumns = `id, lesson_id, word, translation, times_reviewed, average_score, updated_at`

// GetVocabulary returns a vocabulary item by id.
func (r *CatalogRepository) GetVocabulary(ctx context.Context, id string) (*catalog.Vocabulary, error) {
	v, err := scanVocabulary(r.conn.QueryRow(ctx, `SELECT `+vocabularyColumns+` FROM vocabulary WHERE id = $1`, id))
	if err != nil {
		return nil, classify("catalog", "GetVocabulary", err)
	}
	return v, nil
}

// RecordVocabularyReview folds score into the item's review stats.
func (r *CatalogRepository) RecordVocabularyReview(ctx context.Context, id string, score int) (*catalog.Vocabulary, error) {
	query := fmt.Sprintf(`
		UPDATE vocabulary SET
			average_score = `+runningAverageSQL+`,
			times_reviewed = times_reviewed + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+vocabularyColumns, "times_reviewed")

	v, err := scanVocabulary(r.conn.QueryRow(ctx, query, id, score))
	if err != nil {
		return nil, classify("catalog", "RecordVocabularyReview", err)
	}
	return v, nil
}

func scanVocabulary(row pgx.Row) (*catalog.Vocabulary, error) {
	var v catalog.Vocabulary
	if err := row.Scan(&v.ID, &v.LessonID, &v.Word, &v.Translation, &v.TimesReviewed, &v.AverageScore, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SEEDER
// Upserts catalog content. Used by the CLI seed command and by tests.
// ══════════════════════════════════════════════════════════════════════════════

// Seeder writes catalog rows.
type Seeder struct {
	conn *Connection
}

// NewSeeder creates a new Seeder.
func NewSeeder(conn *Connection) *Seeder {
	return &Seeder{conn: conn}
}

// SaveQuiz upserts the quiz and replaces its questions. Stats are kept.
func (s *Seeder) SaveQuiz(ctx context.Context, q quiz.Quiz) error {
	return s.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO quizzes (id, lesson_id, title, passing_score, xp_reward, is_published)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				lesson_id = EXCLUDED.lesson_id,
				title = EXCLUDED.title,
				passing_score = EXCLUDED.passing_score,
				xp_reward = EXCLUDED.xp_reward,
				is_published = EXCLUDED.is_published
		`, q.ID, q.LessonID, q.Title, q.PassingScore, q.XPReward, q.IsPublished)
		if err != nil {
			return fmt.Errorf("failed to save quiz %s: %w", q.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM quiz_questions WHERE quiz_id = $1`, q.ID); err != nil {
			return fmt.Errorf("failed to clear questions of %s: %w", q.ID, err)
		}

		batch := &pgx.Batch{}
		for _, question := range q.Questions {
			options, err := json.Marshal(question.Options)
			if err != nil {
				return fmt.Errorf("failed to marshal options: %w", err)
			}
			batch.Queue(`
				INSERT INTO quiz_questions (quiz_id, id, prompt, options, correct_answer, points, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, q.ID, question.ID, question.Prompt, options, question.CorrectAnswer, question.Points, question.Position)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// SaveLesson upserts a lesson.
func (s *Seeder) SaveLesson(ctx context.Context, l catalog.Lesson) error {
	prereqs := l.Prerequisites
	if prereqs == nil {
		prereqs = []string{}
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO lessons (id, topic_id, title, xp_reward, prerequisites, is_published)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			topic_id = EXCLUDED.topic_id,
			title = EXCLUDED.title,
			xp_reward = EXCLUDED.xp_reward,
			prerequisites = EXCLUDED.prerequisites,
			is_published = EXCLUDED.is_published
	`, l.ID, l.TopicID, l.Title, l.XPReward, prereqs, l.IsPublished)
	return classify("catalog", "SaveLesson", err)
}

// SaveVocabulary upserts a vocabulary item. Review stats are kept.
func (s *Seeder) SaveVocabulary(ctx context.Context, v catalog.Vocabulary) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO vocabulary (id, lesson_id, word, translation)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			lesson_id = EXCLUDED.lesson_id,
			word = EXCLUDED.word,
			translation = EXCLUDED.translation,
			updated_at = NOW()
	`, v.ID, v.LessonID, v.Word, v.Translation)
	return classify("catalog", "SaveVocabulary", err)
}

// SaveBadge upserts a badge definition.
func (s *Seeder) SaveBadge(ctx context.Context, b badge.Badge) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO badges (id, name, description, icon, condition_type, threshold, rarity, xp_reward, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			condition_type = EXCLUDED.condition_type,
			threshold = EXCLUDED.threshold,
			rarity = EXCLUDED.rarity,
			xp_reward = EXCLUDED.xp_reward,
			is_active = EXCLUDED.is_active
	`, b.ID, b.Name, b.Description, b.Icon, string(b.Condition), b.Threshold, string(b.Rarity), b.XPReward, b.IsActive)
	return classify("badge", "SaveBadge", err)
}
