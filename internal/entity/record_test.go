package entity

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStampsKind(t *testing.T) {
	r := New(KindMethod, "run()", map[string]any{FieldMethodName: "run"})
	assert.Equal(t, KindMethod, r.Kind)
	assert.Equal(t, "run", r.String(FieldMethodName))
	assert.Empty(t, r.Key)

	empty := New(KindClass, "", nil)
	require.NotNil(t, empty.Fields)
}

func TestMergeUnionOfDisjointFields(t *testing.T) {
	old := &Record{Kind: KindClass, Key: "1:ApexClass:7", Fields: map[string]any{FieldClassName: "A"}}
	next := &Record{Kind: KindClass, Key: "1:ApexClass:7", Fields: map[string]any{FieldIsTest: true}}

	merged := Merge(old, next)
	assert.Equal(t, "A", merged.String(FieldClassName))
	assert.True(t, merged.Bool(FieldIsTest))

	// inputs untouched
	assert.False(t, old.Has(FieldIsTest))
	assert.False(t, next.Has(FieldClassName))
}

func TestMergeLastWriteWinsAndNilSkipped(t *testing.T) {
	old := &Record{Kind: KindMethod, ID: 9, Name: "old", Fields: map[string]any{FieldScore: 10.0, FieldReturnType: "void"}}
	next := &Record{Kind: KindMethod, Fields: map[string]any{FieldScore: 50.0, FieldReturnType: nil}}

	merged := Merge(old, next)
	assert.Equal(t, 50.0, merged.Score())
	assert.Equal(t, "void", merged.String(FieldReturnType))
	assert.Equal(t, int64(9), merged.ID)
	assert.Equal(t, "old", merged.Name)
}

func TestTruncateName(t *testing.T) {
	long := strings.Repeat("x", 120)
	assert.Len(t, TruncateName(long), MaxNameLength)
	assert.Equal(t, "short", TruncateName("short"))

	wide := strings.Repeat("é", 90)
	assert.Equal(t, MaxNameLength, len([]rune(TruncateName(wide))))
}

func TestTruncateNameCountsUTF16Units(t *testing.T) {
	// each emoji is two code units
	emoji := strings.Repeat("😀", 50)
	assert.Equal(t, strings.Repeat("😀", 40), TruncateName(emoji))

	// a pair straddling the limit is dropped, not split
	odd := strings.Repeat("a", 79) + "😀tail"
	assert.Equal(t, strings.Repeat("a", 79), TruncateName(odd))

	fits := strings.Repeat("😀", 40)
	assert.Equal(t, fits, TruncateName(fits))
}

func TestNumericAccessors(t *testing.T) {
	r := New(KindMethod, "", map[string]any{
		FieldLine:   float64(12),
		FieldColumn: json.Number("4"),
		FieldClass:  int64(77),
		FieldScore:  json.Number("12.5"),
	})
	assert.Equal(t, 12, r.Line())
	assert.Equal(t, 4, r.Column())
	assert.Equal(t, int64(77), r.Ref(FieldClass))
	assert.Equal(t, 12.5, r.Score())
	assert.Equal(t, int64(0), r.Ref(FieldTrigger))
}

func TestKindRoundTripAndGraphMembership(t *testing.T) {
	for _, k := range CommitOrder {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("Widget")
	assert.Error(t, err)

	assert.True(t, KindClass.IsGraphNode())
	assert.True(t, KindTrigger.IsGraphNode())
	assert.True(t, KindMethod.IsGraphNode())
	assert.False(t, KindProperty.IsGraphNode())
	assert.False(t, KindDeclaration.IsGraphNode())
	assert.False(t, Kind(99).Valid())
}
