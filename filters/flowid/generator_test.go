package flowid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardGeneratorLength(t *testing.T) {
	for l := MinLength; l <= MaxLength; l++ {
		g, err := NewStandardGenerator(l)
		require.NoError(t, err)

		id, err := g.Generate()
		require.NoError(t, err)
		assert.Len(t, id, l)
		assert.True(t, g.IsValid(id), id)
	}
}

func TestStandardGeneratorInvalidLength(t *testing.T) {
	for _, l := range []int{0, MinLength - 1, MaxLength + 1} {
		_, err := NewStandardGenerator(l)
		assert.ErrorIs(t, err, ErrInvalidLen)
	}
}

func TestStandardGeneratorValidity(t *testing.T) {
	g, err := NewStandardGenerator(defaultLen)
	require.NoError(t, err)

	for _, tt := range []struct {
		id    string
		valid bool
	}{
		{"abcdefgh", true},
		{"ABC-def+0123", true},
		{"short", false},
		{"has space in it", false},
		{"semi;colon1", false},
		{"", false},
	} {
		assert.Equal(t, tt.valid, g.IsValid(tt.id), tt.id)
	}
}

func TestGeneratorsUnique(t *testing.T) {
	standard, err := NewStandardGenerator(defaultLen)
	require.NoError(t, err)

	for name, g := range map[string]Generator{
		GeneratorStandard: standard,
		GeneratorUUID:     NewUUIDGenerator(),
		GeneratorULID:     NewULIDGenerator(),
	} {
		t.Run(name, func(t *testing.T) {
			seen := make(map[string]bool)
			for i := 0; i < 1000; i++ {
				id, err := g.Generate()
				require.NoError(t, err)
				require.True(t, g.IsValid(id), id)
				require.False(t, seen[id], "duplicate flow id %s", id)
				seen[id] = true
			}
		})
	}
}

func TestUUIDValidity(t *testing.T) {
	g := NewUUIDGenerator()
	assert.True(t, g.IsValid("f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	assert.False(t, g.IsValid("f47ac10b58cc4372a5670e02b2c3d479"))
	assert.False(t, g.IsValid("not-a-uuid"))
}

func TestULIDValidity(t *testing.T) {
	g := NewULIDGenerator()
	assert.True(t, g.IsValid("01ARZ3NDEKTSV4RRFFQ69G5FAV"))
	assert.True(t, g.IsValid("01arz3ndektsv4rrffq69g5fav"))
	assert.False(t, g.IsValid("01ARZ3NDEKTSV4RRFFQ69G5FA"))
	assert.False(t, g.IsValid("abcdefgh"))
}
