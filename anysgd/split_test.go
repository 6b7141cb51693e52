package anysgd

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hashList []string

func (h hashList) Len() int                  { return len(h) }
func (h hashList) Swap(i, j int)             { h[i], h[j] = h[j], h[i] }
func (h hashList) Slice(i, j int) SampleList { return append(hashList{}, h[i:j]...) }
func (h hashList) Hash(i int) []byte         { return []byte(h[i]) }

func TestHashSplit(t *testing.T) {
	var list hashList
	for i := 0; i < 1000; i++ {
		list = append(list, fmt.Sprintf("sample%d", i))
	}
	left, right := HashSplit(list, 0.3)
	require.Equal(t, 1000, left.Len()+right.Len())
	assert.InDelta(t, 300, left.Len(), 60)

	inLeft := map[string]bool{}
	for _, s := range left.(hashList) {
		inLeft[s] = true
	}

	// Adding samples never moves old ones between sides.
	var bigger hashList
	for i := 0; i < 1500; i++ {
		bigger = append(bigger, fmt.Sprintf("sample%d", i))
	}
	left2, _ := HashSplit(bigger, 0.3)
	count := 0
	for _, s := range left2.(hashList) {
		var idx int
		fmt.Sscanf(s, "sample%d", &idx)
		if idx < 1000 {
			assert.True(t, inLeft[s], s)
			count++
		}
	}
	assert.Equal(t, left.Len(), count)
}

func TestHashSplitExtremes(t *testing.T) {
	list := hashList{"a", "b", "c"}
	left, right := HashSplit(list, 0)
	assert.Equal(t, 0, left.Len())
	assert.Equal(t, 3, right.Len())
	left, right = HashSplit(list, 1)
	assert.Equal(t, 3, left.Len())
	assert.Equal(t, 0, right.Len())
}
