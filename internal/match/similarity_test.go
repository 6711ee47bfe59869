package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarityStrategies(t *testing.T) {
	assert.Equal(t, 1.0, ExactNormalized{}.Score("revenue act", "revenue act"))
	assert.Equal(t, 0.0, ExactNormalized{}.Score("revenue act", "the revenue act"))

	assert.Equal(t, 1.0, Substring{}.Score("tax", "surtaxes"))
	assert.Equal(t, 0.0, Substring{WordBoundary: true}.Score("tax", "surtaxes"))
	assert.Equal(t, 1.0, Substring{WordBoundary: true}.Score("tax act", "the tax act passed"))
	assert.Equal(t, 0.0, Substring{}.Score("", "anything"))
}

func TestJaroWinklerSimilarity(t *testing.T) {
	assert.InDelta(t, 0.961, JaroWinklerSimilarity("martha", "marhta"), 0.001)
	assert.InDelta(t, 0.840, JaroWinklerSimilarity("dwayne", "duane"), 0.001)
	assert.Equal(t, 1.0, JaroWinklerSimilarity("", ""))
	assert.Equal(t, 0.0, JaroWinklerSimilarity("abc", ""))
	assert.Equal(t, 0.0, JaroWinklerSimilarity("abc", "xyz"))
}

func TestJaroWinklerWindows(t *testing.T) {
	jw := JaroWinkler{}
	assert.Equal(t, 1.0, jw.Score("revenue act of 1964", "in 1964 the revenue act of 1964 passed"))
	assert.Greater(t, jw.Score("revenue act of 1964", "the revenu act of 1964"), 0.9)
	assert.Less(t, jw.Score("revenue act of 1964", "weather report for tuesday"), 0.7)
}
