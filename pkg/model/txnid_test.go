package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packline/revstore/pkg/errors"
	"github.com/packline/revstore/pkg/model/status"
)

func TestParseTxnID(t *testing.T) {
	tests := []struct {
		in      string
		base    int64
		counter int64
		wantErr bool
	}{
		{in: "0-0", base: 0, counter: 0},
		{in: "2-4", base: 2, counter: 4},
		{in: "1234-5678", base: 1234, counter: 5678},
		// int64 maximum is accepted on either side
		{in: "9223372036854775807-0", base: 9223372036854775807, counter: 0},
		{in: "0-9223372036854775807", base: 0, counter: 9223372036854775807},

		// one past the maximum
		{in: "9223372036854775808-0", wantErr: true},
		// overflows that wrap back into the valid range if computed
		// without intermediate checks
		{in: "20752587082923245568-0", wantErr: true},
		{in: "0-20752587082923245568", wantErr: true},
		{in: "184467440737095516160-0", wantErr: true},
		{in: "92233720368547758070000-0", wantErr: true},

		// structural rejects
		{in: "", wantErr: true},
		{in: "2", wantErr: true},
		{in: "2-", wantErr: true},
		{in: "-4", wantErr: true},
		{in: "-", wantErr: true},
		{in: "2e4-0", wantErr: true},
		{in: "2-4-6", wantErr: true},
		{in: " 2-4", wantErr: true},
		{in: "2-4 ", wantErr: true},
		{in: "+2-4", wantErr: true},
		{in: "0x10-4", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			id, err := ParseTxnID(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, status.ErrMalformedID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, RevNum(tt.base), id.Base)
			assert.Equal(t, tt.counter, id.Counter)
			assert.Equal(t, tt.in, id.String())
		})
	}
}

func TestParseDigitsNeverWraps(t *testing.T) {
	// inputs crafted so that naive last-step comparisons still see a
	// "plausible" positive value
	for _, in := range []string{
		"20752587082923245568",
		"18446744073709551616",
		"18446744073709551617",
		"36893488147419103232",
	} {
		_, err := ParseDigits(in)
		require.Error(t, err, "input %s", in)
		assert.True(t, errors.Is(err, status.ErrMalformedID))
	}
}
