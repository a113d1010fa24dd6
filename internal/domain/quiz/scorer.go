package quiz

import (
	"fmt"

	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// AnswerOutcome is the per-question result of scoring.
type AnswerOutcome struct {
	QuestionID string
	Submitted  string
	Correct    bool
}

// Result is the outcome of scoring one submission.
type Result struct {
	ScorePercent   int
	Passed         bool
	XPAwarded      int
	CorrectCount   int
	TotalQuestions int
	Answers        []AnswerOutcome
}

// Score grades answers (question id -> submitted value) against q.
//
// A question is correct only on exact equality with its stored answer;
// unanswered questions are incorrect. The percentage is rounded half-up.
// A failed attempt still earns round(xpReward / 4).
func Score(q *Quiz, answers map[string]string) (Result, error) {
	total := len(q.Questions)
	if total == 0 {
		return Result{}, shared.NewDomainError("quiz", "Score", shared.ErrDataIntegrity,
			fmt.Sprintf("quiz %s has no questions", q.ID))
	}

	known := make(map[string]struct{}, total)
	for _, question := range q.Questions {
		known[question.ID] = struct{}{}
	}
	for id := range answers {
		if _, ok := known[id]; !ok {
			return Result{}, shared.NewDomainError("quiz", "Score", shared.ErrDataIntegrity,
				fmt.Sprintf("answer references unknown question %s", id))
		}
	}

	res := Result{TotalQuestions: total, Answers: make([]AnswerOutcome, 0, total)}
	for _, question := range q.Questions {
		submitted, ok := answers[question.ID]
		correct := ok && submitted == question.CorrectAnswer
		if correct {
			res.CorrectCount++
		}
		res.Answers = append(res.Answers, AnswerOutcome{
			QuestionID: question.ID,
			Submitted:  submitted,
			Correct:    correct,
		})
	}

	res.ScorePercent = roundDiv(100*res.CorrectCount, total)
	res.Passed = res.ScorePercent >= q.PassingScore
	if res.Passed {
		res.XPAwarded = q.XPReward
	} else {
		res.XPAwarded = PartialXP(q.XPReward)
	}
	return res, nil
}

// PartialXP is the consolation award for a failed attempt: round(xp * 0.25).
func PartialXP(xpReward int) int {
	if xpReward <= 0 {
		return 0
	}
	return roundDiv(xpReward, 4)
}

// RunningAverage folds score into an average over count previous values:
// round((avg*count + score) / (count+1)).
func RunningAverage(avg, count, score int) int {
	if count < 0 {
		count = 0
	}
	return roundDiv(avg*count+score, count+1)
}

// roundDiv divides non-negative n by positive d, rounding half up.
func roundDiv(n, d int) int {
	return (2*n + d) / (2 * d)
}
