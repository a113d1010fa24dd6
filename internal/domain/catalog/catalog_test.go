package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLesson_MissingPrerequisites(t *testing.T) {
	l := &Lesson{ID: "l3", Prerequisites: []string{"l1", "l2"}}
	done := map[string]bool{"l1": true}

	assert.Equal(t, []string{"l2"}, l.MissingPrerequisites(func(id string) bool { return done[id] }))

	done["l2"] = true
	assert.Empty(t, l.MissingPrerequisites(func(id string) bool { return done[id] }))

	assert.Empty(t, (&Lesson{ID: "l1"}).MissingPrerequisites(func(string) bool { return false }))
}
