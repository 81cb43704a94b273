package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTCToUnix(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"20181118T04:00:09.00", 1542513609},
		{"19700101T00:00:00.00", 0},
		{"19700101T00:00:12.00", 12},
		{"19700101T01:06:40.00", 4000},
		{"19700101T01:06:40.01", 4000},
		{"19700101T01:06:40.40", 4000},
		{"19700101T01:06:40.999", 4000},
		{"23000912T01:01:01.00", 10435741261},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := UTCToUnix(tt.in)
			require.NoError(t, err)
			if got != tt.want {
				t.Errorf("UTCToUnix() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUTCToUnixInvalid(t *testing.T) {
	invalid := []string{
		"23000912T01:01:01.0000001",
		"23000912T01:01:011.00",
		"23000912T01:010:01.00",
		"23000912T101:01:01.00",
		"11000912T01:99:00.00",
		"17000100T01:00:00.00",
		"17000001T01:00:00.00",
		"17000140T01:00:00.00",
		"17000132T01:00:00.00",
		"17000131T24:00:00.00",
		"17000131T00:60:00.00",
		"17000131T00:00:61.00",
		"17001301T01:00:00.00",
		"17000140A01:00:00.00",
		"17000140T01:00:00:00",
		"20180101T00:00:00",
		"",
	}
	for _, in := range invalid {
		t.Run(in, func(t *testing.T) {
			_, err := UTCToUnix(in)
			assert.Error(t, err)
		})
	}
}

func TestUTCToUnixLayout(t *testing.T) {
	got, err := UTCToUnixLayout("01 Jan 2018 00:19:27.123", "02 Jan 2006 15:04:05.000")
	require.NoError(t, err)
	assert.Equal(t, int64(1514765967), got)
}

func TestJDateToUnix(t *testing.T) {
	assert.InDelta(t, 0, JDateToUnix(2440587.5), 1e-6)
	assert.InDelta(t, 1514764800, JDateToUnix(2458119.5), 1e-3)
}

func TestUnixToUTCRoundTrip(t *testing.T) {
	s := UnixToUTC(1542513609)
	assert.Equal(t, "20181118T04:00:09.000", s)
	got, err := UTCToUnix(s)
	require.NoError(t, err)
	assert.Equal(t, int64(1542513609), got)
}
