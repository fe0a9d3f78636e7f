package rsqluuid

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shapeRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNew_MatchesRFC4122v4Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := New()
		assert.Len(t, id, 36)
		assert.Regexp(t, shapeRe, id)
	}
}

func TestNewSafe_MatchesRFC4122v4Shape(t *testing.T) {
	assert.Regexp(t, shapeRe, NewSafe())
}

func TestConcurrentDraws_AreAllDistinct(t *testing.T) {
	const threads = 10
	const perThread = 1000

	results := make([][]string, threads)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ids := make([]string, perThread)
			for j := 0; j < perThread; j++ {
				ids[j] = NewSafe()
			}
			results[idx] = ids
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, threads*perThread)
	for _, ids := range results {
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	require.Len(t, seen, threads*perThread)
}
