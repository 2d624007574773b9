package hashkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringVectors(t *testing.T) {
	cases := []struct {
		in   string
		want int32
	}{
		{"", 7},
		{"Foo", 279359},
		{"é", 450},
		{"😀", 1779626}, // surrogate pair folds as two code units
		{"HelloWorldHelloWorld", -1762952569},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, String(tc.in), "String(%q)", tc.in)
	}
}

func TestNumber(t *testing.T) {
	assert.Equal(t, int32(217), Number(0))
	assert.Equal(t, int32(229), Number(12))
	assert.Equal(t, Number(12), Of(12))
	assert.Equal(t, Number(12), Of(12.0))
}

func TestPartsComposition(t *testing.T) {
	assert.Equal(t, int32(7), Parts())
	assert.Equal(t, int32(217), Parts(nil), "nil element folds in zero")
	assert.Equal(t, int32(217+279359), Parts("Foo"))
	assert.Equal(t, int32(-190054937), Parts("01p000000000001", "Foo", "ns.Foo"))
	assert.Equal(t, int32(479768), Parts("A", nil, 12))
}

func TestPartsOrderMatters(t *testing.T) {
	assert.NotEqual(t, Parts("a", "b"), Parts("b", "a"))
}

func TestNestedSlices(t *testing.T) {
	// (7*31+hash("x"))*31 + ((7*31+hash("y"))*31+hash("z"))
	assert.Equal(t, int32(34718), Of([]any{"x", []any{"y", "z"}}))
	assert.Equal(t, int32(17544), Parts("y", "z"))
	assert.Equal(t, Parts("y", "z"), Of([]string{"y", "z"}))
}

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "42:ApexClass:279359", Key(42, "ApexClass", String("Foo")))
	assert.Equal(t, "3:Method:-5", Key(3, "Method", -5))
	assert.Equal(t, "10-4", Location(10, 4))
}

func TestDeterministic(t *testing.T) {
	a := Parts("cls", "Account", 10, "10-4")
	b := Parts("cls", "Account", 10, "10-4")
	assert.Equal(t, a, b)
}
