package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareValuesRank(t *testing.T) {
	ordered := []interface{}{
		nil,
		false,
		true,
		float64(1),
		"a",
		[]interface{}{1.0},
		map[string]interface{}{"a": 1.0},
	}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Negative(t, CompareValues(ordered[i], ordered[i+1]), "expected %v < %v", ordered[i], ordered[i+1])
		assert.Positive(t, CompareValues(ordered[i+1], ordered[i]), "expected %v > %v", ordered[i+1], ordered[i])
	}
}

func TestCompareValuesNumbers(t *testing.T) {
	assert.Negative(t, CompareValues(float64(1), float64(2)))
	assert.Zero(t, CompareValues(float64(3), float64(3)))
	assert.Positive(t, CompareValues(int64(5), float64(2)))
}

func TestCompareValuesStringsByCodepoint(t *testing.T) {
	assert.Negative(t, CompareValues("abc", "abd"))
	assert.Zero(t, CompareValues("same", "same"))
}

func TestCompareValuesArraysLexicographic(t *testing.T) {
	a := []interface{}{float64(1), float64(2)}
	b := []interface{}{float64(1), float64(3)}
	assert.Negative(t, CompareValues(a, b))

	shorter := []interface{}{float64(1)}
	assert.Negative(t, CompareValues(shorter, a))
}

func TestCompareValuesObjectsByKeyThenValue(t *testing.T) {
	a := map[string]interface{}{"a": float64(1)}
	b := map[string]interface{}{"a": float64(2)}
	assert.Negative(t, CompareValues(a, b))

	c := map[string]interface{}{"b": float64(0)}
	assert.Negative(t, CompareValues(a, c)) // key "a" < key "b"
}

func TestSortRowsTieBreaksOnID(t *testing.T) {
	rows := []Row{
		{Key: float64(1), ID: "z"},
		{Key: float64(1), ID: "a"},
		{Key: float64(0), ID: "m"},
	}
	SortRows(rows)

	assert.Equal(t, []Row{
		{Key: float64(0), ID: "m"},
		{Key: float64(1), ID: "a"},
		{Key: float64(1), ID: "z"},
	}, rows)
}
