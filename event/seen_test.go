package event

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenSet(t *testing.T) {
	t.Run("remembers added ids", func(t *testing.T) {
		s := newSeenSet(4)

		s.Add("a")

		assert.True(t, s.Contains("a"))
		assert.False(t, s.Contains("b"))
	})

	t.Run("adding an id twice does not consume extra capacity", func(t *testing.T) {
		s := newSeenSet(2)

		s.Add("a")
		s.Add("a")
		s.Add("b")

		assert.True(t, s.Contains("a"))
		assert.True(t, s.Contains("b"))
	})

	t.Run("evicts the oldest id once capacity is reached", func(t *testing.T) {
		s := newSeenSet(3)

		for i := 0; i < 4; i++ {
			s.Add(fmt.Sprintf("event-%d", i))
		}

		assert.False(t, s.Contains("event-0"))
		assert.True(t, s.Contains("event-1"))
		assert.True(t, s.Contains("event-2"))
		assert.True(t, s.Contains("event-3"))
	})
}
