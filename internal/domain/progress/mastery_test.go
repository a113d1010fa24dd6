package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		correct, incorrect int
		want               MasteryLevel
	}{
		{0, 0, MasteryLearning},
		{4, 0, MasteryLearning},
		{5, 4, MasteryFamiliar},
		{5, 5, MasteryLearning},
		{9, 0, MasteryFamiliar},
		{10, 4, MasteryMastered},
		{10, 5, MasteryFamiliar},
		{10, 3, MasteryMastered},
		{10, 0, MasteryMastered},
		{20, 10, MasteryFamiliar},
		{20, 9, MasteryMastered},
		{10, 10, MasteryLearning},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.correct, tt.incorrect), "correct=%d incorrect=%d", tt.correct, tt.incorrect)
	}
}

func TestReview_IncrementsBeforeClassifying(t *testing.T) {
	counts, level := Review(ReviewCounts{Correct: 9, Incorrect: 5}, true)
	assert.Equal(t, ReviewCounts{Correct: 10, Incorrect: 5}, counts)
	assert.Equal(t, MasteryFamiliar, level)

	counts, level = Review(ReviewCounts{Correct: 9, Incorrect: 3}, true)
	assert.Equal(t, ReviewCounts{Correct: 10, Incorrect: 3}, counts)
	assert.Equal(t, MasteryMastered, level)
}

func TestReview_AllowsDowngrade(t *testing.T) {
	counts, level := Review(ReviewCounts{Correct: 10, Incorrect: 4}, false)
	assert.Equal(t, 5, counts.Incorrect)
	assert.Equal(t, MasteryFamiliar, level)

	for i := 0; i < 5; i++ {
		counts, level = Review(counts, false)
	}
	assert.Equal(t, ReviewCounts{Correct: 10, Incorrect: 10}, counts)
	assert.Equal(t, MasteryLearning, level)
}

func TestMasteryLevel_IsValid(t *testing.T) {
	assert.True(t, MasteryMastered.IsValid())
	assert.False(t, MasteryLevel("expert").IsValid())
}
