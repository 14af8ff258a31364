package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/packline/revstore/pkg/core/status"
	"github.com/packline/revstore/pkg/errors"
)

func TestManifestCodec(t *testing.T) {
	defer goleak.VerifyNone(t)

	offsets := []int64{0, 17, 90, 4096}
	data := serializeManifest(offsets)
	assert.Equal(t, "0\n17\n90\n4096\n", string(data))

	back, err := parseManifest(data)
	require.NoError(t, err)
	assert.Equal(t, offsets, back)

	empty, err := parseManifest(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for name, raw := range map[string]string{
		"repeated offset": "0\n5\n5\n",
		"descending":      "10\n3\n",
		"negative":        "-3\n",
		"not a number":    "0\noops\n",
		"overflowing":     "99999999999999999999\n",
	} {
		_, err := parseManifest([]byte(raw))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, status.ErrCorrupt), name)
	}
}

func TestL2PCodec(t *testing.T) {
	defer goleak.VerifyNone(t)

	entries := []l2pEntry{
		{ItemID: 8, Offset: 0, Size: 120},
		{ItemID: 9, Offset: 120, Size: 7},
		{ItemID: 11, Offset: 127, Size: 4000},
	}
	data := serializeL2P(entries)
	assert.Equal(t, "L2P 3\n8 0 120\n9 120 7\n11 127 4000\n", string(data))

	back, err := parseL2P(data)
	require.NoError(t, err)
	assert.Equal(t, entries, back)

	for name, raw := range map[string]string{
		"empty":           "",
		"wrong tag":       "P2L 1\n0 0 1\n",
		"count mismatch":  "L2P 2\n0 0 1\n",
		"short entry":     "L2P 1\n0 0\n",
		"negative offset": "L2P 1\n0 -4 1\n",
	} {
		_, err := parseL2P([]byte(raw))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, status.ErrCorrupt), name)
	}

	e, ok := findL2P(entries, 9)
	require.True(t, ok)
	assert.Equal(t, entries[1], e)
	_, ok = findL2P(entries, 10)
	assert.False(t, ok)
	_, ok = findL2P(nil, 8)
	assert.False(t, ok)
}

func TestP2LCodec(t *testing.T) {
	defer goleak.VerifyNone(t)

	entries := []p2lEntry{
		{Offset: 0, Size: 64, ItemType: "rev", CRC: 0xdeadbeef},
		{Offset: 64, Size: 1, ItemType: "rev", CRC: 0},
	}
	data := serializeP2L(entries)
	assert.Equal(t, "P2L 2\n0 64 rev deadbeef\n64 1 rev 00000000\n", string(data))

	back, err := parseP2L(data)
	require.NoError(t, err)
	assert.Equal(t, entries, back)

	for name, raw := range map[string]string{
		"wrong tag":      "L2P 1\n0 1 rev 00000000\n",
		"count mismatch": "P2L 1\n",
		"short entry":    "P2L 1\n0 1 rev\n",
		"bad checksum":   "P2L 1\n0 1 rev zz\n",
	} {
		_, err := parseP2L([]byte(raw))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, status.ErrCorrupt), name)
	}

	e, ok := findP2L(entries, 64)
	require.True(t, ok)
	assert.Equal(t, entries[1], e)
	_, ok = findP2L(entries, 63)
	assert.False(t, ok)
}

func TestContentChecksum(t *testing.T) {
	defer goleak.VerifyNone(t)

	// CRC-32C check value
	assert.Equal(t, uint32(0xe3069283), contentCRC([]byte("123456789")))
	assert.Equal(t, uint32(0), contentCRC(nil))
}

func TestSplitLines(t *testing.T) {
	defer goleak.VerifyNone(t)

	assert.Empty(t, splitLines(nil))
	assert.Empty(t, splitLines([]byte("\n\n")))
	assert.Equal(t, []string{"a", "b"}, splitLines([]byte("a\nb\n")))
	assert.Equal(t, []string{"a", "b"}, splitLines([]byte("a\n\nb")))
}
