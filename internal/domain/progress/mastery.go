package progress

// MasteryLevel is the three-tier proficiency of one vocabulary item.
type MasteryLevel string

const (
	MasteryLearning MasteryLevel = "learning"
	MasteryFamiliar MasteryLevel = "familiar"
	MasteryMastered MasteryLevel = "mastered"
)

// IsValid checks the level is one of the known tiers.
func (l MasteryLevel) IsValid() bool {
	switch l {
	case MasteryLearning, MasteryFamiliar, MasteryMastered:
		return true
	default:
		return false
	}
}

// Mastery thresholds. Comparisons against incorrect answers are strict.
const (
	MasteredMinCorrect = 10
	FamiliarMinCorrect = 5
)

// Classify maps cumulative review counts to a level:
//
//	mastered  correct >= 10 && correct > 2*incorrect
//	familiar  correct >= 5  && correct > incorrect
//	learning  otherwise
//
// A level can go down as incorrect answers accumulate.
func Classify(correct, incorrect int) MasteryLevel {
	switch {
	case correct >= MasteredMinCorrect && correct > 2*incorrect:
		return MasteryMastered
	case correct >= FamiliarMinCorrect && correct > incorrect:
		return MasteryFamiliar
	default:
		return MasteryLearning
	}
}

// ReviewCounts are the cumulative outcomes for one vocabulary item.
type ReviewCounts struct {
	Correct   int
	Incorrect int
}

// Apply returns the counts after one more review.
func (c ReviewCounts) Apply(correct bool) ReviewCounts {
	if correct {
		c.Correct++
	} else {
		c.Incorrect++
	}
	return c
}

// Level classifies the counts.
func (c ReviewCounts) Level() MasteryLevel {
	return Classify(c.Correct, c.Incorrect)
}

// Review increments the relevant counter and classifies the result.
func Review(prev ReviewCounts, correct bool) (ReviewCounts, MasteryLevel) {
	next := prev.Apply(correct)
	return next, next.Level()
}
