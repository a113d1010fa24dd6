package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/itlingo/progress-engine/internal/domain/badge"
	"github.com/itlingo/progress-engine/internal/domain/catalog"
	"github.com/itlingo/progress-engine/internal/domain/quiz"
)

// catalogFile is the seed format:
//
//	{
//	  "lessons":    [{"id": "l1", "xp_reward": 50, "prerequisites": []}],
//	  "quizzes":    [{"id": "q1", "passing_score": 70, "xp_reward": 100,
//	                  "questions": [{"id": "a", "correct_answer": "x"}]}],
//	  "vocabulary": [{"id": "v1", "word": "hola", "translation": "hello"}],
//	  "badges":     [{"id": "b1", "condition": "xp_total", "threshold": 100}]
//	}
//
// published and active default to true.
type catalogFile struct {
	Lessons    []lessonSeed     `json:"lessons"`
	Quizzes    []quizSeed       `json:"quizzes"`
	Vocabulary []vocabularySeed `json:"vocabulary"`
	Badges     []badgeSeed      `json:"badges"`
}

type lessonSeed struct {
	ID            string   `json:"id"`
	TopicID       string   `json:"topic_id"`
	Title         string   `json:"title"`
	XPReward      int      `json:"xp_reward"`
	Prerequisites []string `json:"prerequisites"`
	Published     *bool    `json:"published"`
}

type questionSeed struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Points        int      `json:"points"`
}

type quizSeed struct {
	ID           string         `json:"id"`
	LessonID     string         `json:"lesson_id"`
	Title        string         `json:"title"`
	PassingScore int            `json:"passing_score"`
	XPReward     int            `json:"xp_reward"`
	Questions    []questionSeed `json:"questions"`
	Published    *bool          `json:"published"`
}

type vocabularySeed struct {
	ID          string `json:"id"`
	LessonID    string `json:"lesson_id"`
	Word        string `json:"word"`
	Translation string `json:"translation"`
}

type badgeSeed struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Condition   string `json:"condition"`
	Threshold   int    `json:"threshold"`
	Rarity      string `json:"rarity"`
	XPReward    int    `json:"xp_reward"`
	Active      *bool  `json:"active"`
}

// seedCounts reports how many entries of each kind were written.
type seedCounts struct {
	Lessons    int `json:"lessons"`
	Quizzes    int `json:"quizzes"`
	Vocabulary int `json:"vocabulary"`
	Badges     int `json:"badges"`
}

func orTrue(b *bool) bool {
	return b == nil || *b
}

func decodeCatalog(r io.Reader) (*catalogFile, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *catalogFile) validate() error {
	for i, l := range f.Lessons {
		if l.ID == "" {
			return fmt.Errorf("lessons[%d]: id is required", i)
		}
		if l.XPReward < 0 {
			return fmt.Errorf("lesson %s: xp_reward cannot be negative", l.ID)
		}
	}
	for i, q := range f.Quizzes {
		if q.ID == "" {
			return fmt.Errorf("quizzes[%d]: id is required", i)
		}
		if q.PassingScore < 0 || q.PassingScore > 100 {
			return fmt.Errorf("quiz %s: passing_score must be within 0-100", q.ID)
		}
		if q.XPReward < 0 {
			return fmt.Errorf("quiz %s: xp_reward cannot be negative", q.ID)
		}
		seen := make(map[string]bool, len(q.Questions))
		for j, question := range q.Questions {
			if question.ID == "" {
				return fmt.Errorf("quiz %s: questions[%d]: id is required", q.ID, j)
			}
			if seen[question.ID] {
				return fmt.Errorf("quiz %s: duplicate question %s", q.ID, question.ID)
			}
			seen[question.ID] = true
		}
	}
	for i, v := range f.Vocabulary {
		if v.ID == "" {
			return fmt.Errorf("vocabulary[%d]: id is required", i)
		}
	}
	for i, b := range f.Badges {
		if b.ID == "" {
			return fmt.Errorf("badges[%d]: id is required", i)
		}
		if _, err := badge.ParseCondition(b.Condition); err != nil {
			return fmt.Errorf("badge %s: %w", b.ID, err)
		}
		if b.Threshold < 0 {
			return fmt.Errorf("badge %s: threshold cannot be negative", b.ID)
		}
	}
	return nil
}

// apply writes lessons first so quizzes and vocabulary can reference them.
func (f *catalogFile) apply(ctx context.Context, w catalogWriter) (seedCounts, error) {
	var counts seedCounts

	for _, l := range f.Lessons {
		err := w.SaveLesson(ctx, catalog.Lesson{
			ID:            l.ID,
			TopicID:       l.TopicID,
			Title:         l.Title,
			XPReward:      l.XPReward,
			Prerequisites: l.Prerequisites,
			IsPublished:   orTrue(l.Published),
		})
		if err != nil {
			return counts, fmt.Errorf("lesson %s: %w", l.ID, err)
		}
		counts.Lessons++
	}

	for _, q := range f.Quizzes {
		questions := make([]quiz.Question, 0, len(q.Questions))
		for i, question := range q.Questions {
			points := question.Points
			if points == 0 {
				points = 1
			}
			questions = append(questions, quiz.Question{
				ID:            question.ID,
				Prompt:        question.Prompt,
				Options:       question.Options,
				CorrectAnswer: question.CorrectAnswer,
				Points:        points,
				Position:      i,
			})
		}
		err := w.SaveQuiz(ctx, quiz.Quiz{
			ID:           q.ID,
			LessonID:     q.LessonID,
			Title:        q.Title,
			Questions:    questions,
			PassingScore: q.PassingScore,
			XPReward:     q.XPReward,
			IsPublished:  orTrue(q.Published),
		})
		if err != nil {
			return counts, fmt.Errorf("quiz %s: %w", q.ID, err)
		}
		counts.Quizzes++
	}

	for _, v := range f.Vocabulary {
		err := w.SaveVocabulary(ctx, catalog.Vocabulary{
			ID:          v.ID,
			LessonID:    v.LessonID,
			Word:        v.Word,
			Translation: v.Translation,
		})
		if err != nil {
			return counts, fmt.Errorf("vocabulary %s: %w", v.ID, err)
		}
		counts.Vocabulary++
	}

	for _, b := range f.Badges {
		condition, _ := badge.ParseCondition(b.Condition)
		rarity := badge.Rarity(b.Rarity)
		if rarity == "" {
			rarity = badge.RarityCommon
		}
		err := w.SaveBadge(ctx, badge.Badge{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Icon:        b.Icon,
			Condition:   condition,
			Threshold:   b.Threshold,
			Rarity:      rarity,
			XPReward:    b.XPReward,
			IsActive:    orTrue(b.Active),
		})
		if err != nil {
			return counts, fmt.Errorf("badge %s: %w", b.ID, err)
		}
		counts.Badges++
	}

	return counts, nil
}
