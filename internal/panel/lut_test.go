package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"unicornhat/internal/matrix"
)

func TestLUTShape(t *testing.T) {
	assert.Len(t, lut, 119)

	seen := map[int]int{}
	triples := map[[3]int]bool{}
	for i, e := range lut {
		assert.False(t, triples[e], "entry %d repeats %v", i, e)
		triples[e] = true
		for _, o := range e {
			assert.True(t, o >= 0 && o < BufferSize, "entry %d offset %d out of range", i, o)
			if prev, ok := seen[o]; ok {
				t.Errorf("offset %d used by entries %d and %d", o, prev, i)
			}
			seen[o] = i
		}
	}
}

func TestLUTHalvesAreSeparate(t *testing.T) {
	// columns 0-8 are wired to the left chip, 9-16 to the right one
	const leftEntries = 9 * Height
	for i, e := range lut {
		for _, o := range e {
			if i < leftEntries {
				assert.Less(t, o, matrix.MemSize, "entry %d", i)
			} else {
				assert.GreaterOrEqual(t, o, matrix.MemSize, "entry %d", i)
			}
		}
	}
}

func TestLUTKnownEntries(t *testing.T) {
	assert.Equal(t, [3]int{139, 138, 137}, lut[0])
	assert.Equal(t, [3]int{113, 115, 114}, lut[14])
	assert.Equal(t, [3]int{363, 362, 361}, lut[63])
	assert.Equal(t, [3]int{296, 298, 297}, lut[118])
}
