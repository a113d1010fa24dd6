package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
)

// runningAverage folds the second parameter into (average_score, n) with
// half-up rounding. SQLite divides integers as integers.
const runningAverage = `((average_score * %[1]s + ?) * 2 + %[1]s + 1) / (2 * (%[1]s + 1))`

// ══════════════════════════════════════════════════════════════════════════════
// QUIZZES
// ══════════════════════════════════════════════════════════════════════════════

// QuizRepository implements quiz.Repository.
type QuizRepository struct {
	db *DB
}

var _ quiz.Repository = (*QuizRepository)(nil)

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(db *DB) *QuizRepository {
	return &QuizRepository{db: db}
}

type quizRow struct {
	ID            string `db:"id"`
	LessonID      string `db:"lesson_id"`
	Title         string `db:"title"`
	PassingScore  int    `db:"passing_score"`
	XPReward      int    `db:"xp_reward"`
	IsPublished   bool   `db:"is_published"`
	TotalAttempts int    `db:"total_attempts"`
	AverageScore  int    `db:"average_score"`
}

type questionRow struct {
	ID            string `db:"id"`
	Prompt        string `db:"prompt"`
	Options       string `db:"options"`
	CorrectAnswer string `db:"correct_answer"`
	Points        int    `db:"points"`
	Position      int    `db:"position"`
}

func (r *QuizRepository) Get(ctx context.Context, id string) (*quiz.Quiz, error) {
	var row quizRow
	if err := r.db.x.GetContext(ctx, &row, `
		SELECT id, lesson_id, title, passing_score, xp_reward, is_published, total_attempts, average_score
		FROM quizzes WHERE id = ?
	`, id); err != nil {
		return nil, classify("quiz", "Get", err)
	}

	var questions []questionRow
	if err := r.db.x.SelectContext(ctx, &questions, `
		SELECT id, prompt, options, correct_answer, points, position
		FROM quiz_questions WHERE quiz_id = ? ORDER BY position, id
	`, id); err != nil {
		return nil, classify("quiz", "Get", err)
	}

	q := &quiz.Quiz{
		ID:           row.ID,
		LessonID:     row.LessonID,
		Title:        row.Title,
		PassingScore: row.PassingScore,
		XPReward:     row.XPReward,
		IsPublished:  row.IsPublished,
		Stats:        quiz.Stats{TotalAttempts: row.TotalAttempts, AverageScore: row.AverageScore},
	}
	for _, qr := range questions {
		question := quiz.Question{
			ID:            qr.ID,
			Prompt:        qr.Prompt,
			CorrectAnswer: qr.CorrectAnswer,
			Points:        qr.Points,
			Position:      qr.Position,
		}
		if err := json.Unmarshal([]byte(qr.Options), &question.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options of question %s: %w", qr.ID, err)
		}
		q.Questions = append(q.Questions, question)
	}
	return q, nil
}

func (r *QuizRepository) RecordAttempt(ctx context.Context, id string, score int) (quiz.Stats, error) {
	var s struct {
		TotalAttempts int `db:"total_attempts"`
		AverageScore  int `db:"average_score"`
	}
	err := r.db.x.GetContext(ctx, &s, fmt.Sprintf(`
		UPDATE quizzes SET
			average_score = `+runningAverage+`,
			total_attempts = total_attempts + 1
		WHERE id = ?
		RETURNING total_attempts, average_score
	`, "total_attempts"), score, id)
	if err != nil {
		return quiz.Stats{}, classify("quiz", "RecordAttempt", err)
	}
	return quiz.Stats{TotalAttempts: s.TotalAttempts, AverageScore: s.AverageScore}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS AND VOCABULARY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements catalog.Repository.
type CatalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

type lessonDefRow struct {
	ID            string `db:"id"`
	TopicID       string `db:"topic_id"`
	Title         string `db:"title"`
	XPReward      int    `db:"xp_reward"`
	Prerequisites string `db:"prerequisites"`
	IsPublished   bool   `db:"is_published"`
}

type vocabularyRow struct {
	ID            string `db:"id"`
	LessonID      string `db:"lesson_id"`
	Word          string `db:"word"`
	Translation   string `db:"translation"`
	TimesReviewed int    `db:"times_reviewed"`
	AverageScore  int    `db:"average_score"`
	UpdatedAt     int64  `db:"updated_at"`
}

func (r vocabularyRow) toDomain() *catalog.Vocabulary {
	return &catalog.Vocabulary{
		ID:            r.ID,
		LessonID:      r.LessonID,
		Word:          r.Word,
		Translation:   r.Translation,
		TimesReviewed: r.TimesReviewed,
		AverageScore:  r.AverageScore,
		UpdatedAt:     fromNanos(r.UpdatedAt),
	}
}

const vocabularyColumns = `id, lesson_id, word, translation, times_reviewed, average_score, updated_at`

func (r *CatalogRepository) GetLesson(ctx context.Context, id string) (*catalog.Lesson, error) {
	var row lessonDefRow
	if err := r.db.x.GetContext(ctx, &row, `
		SELECT id, topic_id, title, xp_reward, prerequisites, is_published FROM lessons WHERE id = ?
	`, id); err != nil {
		return nil, classify("catalog", "GetLesson", err)
	}

	l := &catalog.Lesson{
		ID:          row.ID,
		TopicID:     row.TopicID,
		Title:       row.Title,
		XPReward:    row.XPReward,
		IsPublished: row.IsPublished,
	}
	if err := json.Unmarshal([]byte(row.Prerequisites), &l.Prerequisites); err != nil {
		return nil, fmt.Errorf("failed to decode prerequisites of lesson %s: %w", id, err)
	}
	return l, nil
}

func (r *CatalogRepository) GetVocabulary(ctx context.Context, id string) (*catalog.Vocabulary, error) {
	var row vocabularyRow
	if err := r.db.x.GetContext(ctx, &row, `SELECT `+vocabularyColumns+` FROM vocabulary WHERE id = ?`, id); err != nil {
		return nil, classify("catalog", "GetVocabulary", err)
	}
	return row.toDomain(), nil
}

func (r *CatalogRepository) RecordVocabularyReview(ctx context.Context, id string, score int) (*catalog.Vocabulary, error) {
	var row vocabularyRow
	err := r.db.x.GetContext(ctx, &row, fmt.Sprintf(`
		UPDATE vocabulary SET
			average_score = `+runningAverage+`,
			times_reviewed = times_reviewed + 1,
			updated_at = ?
		WHERE id = ?
		RETURNING `+vocabularyColumns, "times_reviewed"), score, toNanos(r.db.now()), id)
	if err != nil {
		return nil, classify("catalog", "RecordVocabularyReview", err)
	}
	return row.toDomain(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SEEDER
// ══════════════════════════════════════════════════════════════════════════════

// Seeder upserts catalog content.
type Seeder struct {
	db *DB
}

// NewSeeder creates a new Seeder.
func NewSeeder(db *DB) *Seeder {
	return &Seeder{db: db}
}

// SaveQuiz upserts the quiz and replaces its questions. Stats are kept.
func (s *Seeder) SaveQuiz(ctx context.Context, q quiz.Quiz) error {
	err := s.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quizzes (id, lesson_id, title, passing_score, xp_reward, is_published)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				lesson_id = excluded.lesson_id,
				title = excluded.title,
				passing_score = excluded.passing_score,
				xp_reward = excluded.xp_reward,
				is_published = excluded.is_published
		`, q.ID, q.LessonID, q.Title, q.PassingScore, q.XPReward, q.IsPublished); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_questions WHERE quiz_id = ?`, q.ID); err != nil {
			return err
		}

		for _, question := range q.Questions {
			options := question.Options
			if options == nil {
				options = []string{}
			}
			encoded, err := json.Marshal(options)
			if err != nil {
				return fmt.Errorf("failed to encode options: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO quiz_questions (quiz_id, id, prompt, options, correct_answer, points, position)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, q.ID, question.ID, question.Prompt, string(encoded), question.CorrectAnswer, question.Points, question.Position); err != nil {
				return err
			}
		}
		return nil
	})
	return classify("quiz", "SaveQuiz", err)
}

// SaveLesson upserts a lesson.
func (s *Seeder) SaveLesson(ctx context.Context, l catalog.Lesson) error {
	prereqs := l.Prerequisites
	if prereqs == nil {
		prereqs = []string{}
	}
	encoded, err := json.Marshal(prereqs)
	if err != nil {
		return fmt.Errorf("failed to encode prerequisites: %w", err)
	}

	_, err = s.db.x.ExecContext(ctx, `
		INSERT INTO lessons (id, topic_id, title, xp_reward, prerequisites, is_published)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			topic_id = excluded.topic_id,
			title = excluded.title,
			xp_reward = excluded.xp_reward,
			prerequisites = excluded.prerequisites,
			is_published = excluded.is_published
	`, l.ID, l.TopicID, l.Title, l.XPReward, string(encoded), l.IsPublished)
	return classify("catalog", "SaveLesson", err)
}

// SaveVocabulary upserts a vocabulary item. Review stats are kept.
func (s *Seeder) SaveVocabulary(ctx context.Context, v catalog.Vocabulary) error {
	_, err := s.db.x.ExecContext(ctx, `
		INSERT INTO vocabulary (id, lesson_id, word, translation, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			lesson_id = excluded.lesson_id,
			word = excluded.word,
			translation = excluded.translation,
			updated_at = excluded.updated_at
	`, v.ID, v.LessonID, v.Word, v.Translation, toNanos(s.db.now()))
	return classify("catalog", "SaveVocabulary", err)
}

// SaveBadge upserts a badge definition.
func (s *Seeder) SaveBadge(ctx context.Context, b badge.Badge) error {
	_, err := s.db.x.NamedExecContext(ctx, `
		INSERT INTO badges (id, name, description, icon, condition_type, threshold, rarity, xp_reward, is_active)
		VALUES (:id, :name, :description, :icon, :condition_type, :threshold, :rarity, :xp_reward, :is_active)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			icon = excluded.icon,
			condition_type = excluded.condition_type,
			threshold = excluded.threshold,
			rarity = excluded.rarity,
			xp_reward = excluded.xp_reward,
			is_active = excluded.is_active
	`, badgeToRow(b))
	return classify("badge", "SaveBadge", err)
}
