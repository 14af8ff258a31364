package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model/status"
)

func TestItemHeaderRoundTrip(t *testing.T) {
	phys := ItemHeader{Size: 1234}
	assert.Equal(t, "rev P 1234\n", string(phys.Serialize()))

	logical := ItemHeader{Logical: true, ItemID: 53, CRC: 0xdeadbeef}
	assert.Equal(t, "rev L 53 deadbeef\n", string(logical.Serialize()))

	for _, h := range []ItemHeader{phys, logical} {
		line := h.Serialize()
		parsed, err := ParseItemHeader(string(line[:len(line)-1]))
		require.NoError(t, err)
		assert.Equal(t, h, parsed)
	}
}

func TestItemHeaderRejects(t *testing.T) {
	for _, line := range []string{
		"",
		"rev",
		"rev X 12",
		"rev P",
		"rev P 12 extra",
		"rev P -3",
		"rev L 53",
		"rev L 53 zzzz99999",
		"blob P 12",
	} {
		_, err := ParseItemHeader(line)
		require.Error(t, err, "line %q", line)
		assert.True(t, errors.Is(err, status.ErrBadItemHeader), "line %q", line)
	}
}

func TestSplitItem(t *testing.T) {
	raw := append(ItemHeader{Size: 5}.Serialize(), []byte("hello")...)
	h, content, err := SplitItem(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(5), h.Size)
	assert.Equal(t, "hello", string(content))

	_, _, err = SplitItem([]byte("rev P 5"))
	require.Error(t, err)
}
