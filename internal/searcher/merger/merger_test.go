package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type scored struct {
	id    int
	score float64
}

func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

func TestTopK(t *testing.T) {
	items := []scored{{1, 0.2}, {2, 0.9}, {3, 0.5}, {4, 0.9}, {5, 0.1}}

	got := TopK(items, 3, better)
	assert.Equal(t, []scored{{2, 0.9}, {4, 0.9}, {3, 0.5}}, got)
}

func TestTopK_KLargerThanInput(t *testing.T) {
	items := []scored{{3, 0.1}, {1, 0.1}}
	assert.Equal(t, []scored{{1, 0.1}, {3, 0.1}}, TopK(items, 10, better))
}

func TestTopK_Empty(t *testing.T) {
	assert.Empty(t, TopK[scored](nil, 5, better))
	assert.Nil(t, TopK([]scored{{1, 1}}, 0, better))
}
