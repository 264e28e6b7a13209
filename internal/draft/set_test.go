package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToggleTwiceRestoresSet(t *testing.T) {
	sets := [][]string{
		nil,
		{},
		{"morning"},
		{"morning", "evening"},
		{"evening", "morning", "afternoon"},
	}
	for _, original := range sets {
		for _, v := range []string{"morning", "weekend"} {
			twice := Toggle(Toggle(original, v), v)
			assert.True(t, SetEqual(original, twice), "toggle %q twice on %v gave %v", v, original, twice)
		}
	}
}

func TestToggle(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Toggle([]string{"a"}, "b"))
	assert.Equal(t, []string{"b"}, Toggle([]string{"a", "b"}, "a"))

	in := []string{"a", "b"}
	_ = Toggle(in, "a")
	assert.Equal(t, []string{"a", "b"}, in, "toggle must not mutate its input")
}

func TestNormalizeSet(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, NormalizeSet([]string{"b", "a", "b"}))
	assert.Nil(t, NormalizeSet(nil))
}

func TestSetEqualIgnoresOrder(t *testing.T) {
	assert.True(t, SetEqual([]string{"x", "y"}, []string{"y", "x"}))
	assert.True(t, SetEqual(nil, []string{}))
	assert.True(t, SetEqual([]string{"x", "x"}, []string{"x"}))
	assert.False(t, SetEqual([]string{"x"}, []string{"x", "y"}))
}
