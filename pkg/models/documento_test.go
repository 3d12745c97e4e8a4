package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumValueFitsBigint(t *testing.T) {
	tests := []struct {
		name     string
		checksum Checksum
	}{
		{"zero", 0},
		{"small", 42},
		{"max int64", Checksum(math.MaxInt64)},
		{"high bit set", Checksum(math.MaxInt64) + 1},
		{"max uint64", Checksum(math.MaxUint64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.checksum.Value()
			require.NoError(t, err)

			// The wire value must be an int64 so the driver accepts it for
			// a bigint column regardless of the high bit.
			wire, ok := v.(int64)
			require.True(t, ok, "Value must produce int64, got %T", v)

			var back Checksum
			require.NoError(t, back.Scan(wire))
			assert.Equal(t, tt.checksum, back)
		})
	}
}

func TestChecksumScanRejectsUnknownTypes(t *testing.T) {
	var c Checksum
	assert.Error(t, c.Scan("not a number"))

	require.NoError(t, c.Scan(nil))
	assert.Zero(t, c)
}
