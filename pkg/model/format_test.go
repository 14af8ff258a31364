package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model/status"
)

func TestFormatRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		f    Format
		text string
	}{
		{
			name: "current logical",
			f:    Format{Number: 7, ShardSize: 8, Logical: true},
			text: "7\nlayout sharded 8\naddressing logical 0\n",
		},
		{
			name: "upgraded mid-history",
			f:    Format{Number: 7, ShardSize: 4, Logical: true, LogicalStart: 16},
			text: "7\nlayout sharded 4\naddressing logical 16\n",
		},
		{
			name: "physical format 7",
			f:    Format{Number: 7, ShardSize: 1000},
			text: "7\nlayout sharded 1000\naddressing physical\n",
		},
		{
			name: "packed revprop era",
			f:    Format{Number: 6, ShardSize: 4},
			text: "6\nlayout sharded 4\n",
		},
		{
			name: "legacy linear",
			f:    Format{Number: 3, Linear: true},
			text: "3\nlayout linear\n",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, string(tt.f.Serialize()))
			parsed, err := ParseFormat([]byte(tt.text))
			require.NoError(t, err)
			assert.Equal(t, tt.f, parsed)
		})
	}
}

func TestFormatParseErrors(t *testing.T) {
	for _, text := range []string{
		"",
		"abc\n",
		"7\nlayout sharded -2\n",
		"7\nlayout sharded 0\n",
		"7\nlayout diagonal 4\n",
		"7\nlayout sharded 4\naddressing telepathic\n",
		"7\nlayout linear\naddressing logical 0\n",
		"6\nlayout sharded 4\naddressing logical 0\n",
	} {
		_, err := ParseFormat([]byte(text))
		require.Error(t, err, "format text %q", text)
		assert.True(t, errors.Is(err, status.ErrBadFormat), "format text %q", text)
	}
}

func TestFormatCapabilities(t *testing.T) {
	linear := Format{Number: 7, Linear: true}
	assert.False(t, linear.SupportsPacking())
	assert.False(t, linear.SupportsPackedRevprops())

	old := Format{Number: 3, ShardSize: 1000}
	assert.False(t, old.SupportsPacking())

	packOnly := Format{Number: 4, ShardSize: 1000}
	assert.True(t, packOnly.SupportsPacking())
	assert.False(t, packOnly.SupportsPackedRevprops())

	current := NewFormat(8)
	assert.True(t, current.SupportsPacking())
	assert.True(t, current.SupportsPackedRevprops())
	assert.True(t, current.Logical)
	assert.Equal(t, int64(8), current.ShardSize)
}

func TestFormatUsesLogical(t *testing.T) {
	f := Format{Number: 7, ShardSize: 4, Logical: true, LogicalStart: 16}
	assert.False(t, f.UsesLogical(0))
	assert.False(t, f.UsesLogical(15))
	assert.True(t, f.UsesLogical(16))
	assert.True(t, f.UsesLogical(17))

	phys := Format{Number: 7, ShardSize: 4}
	assert.False(t, phys.UsesLogical(16))
}
