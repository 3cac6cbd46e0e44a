package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid address", "0x1234567890abcdef1234567890abcdef12345678", false},
		{"Valid address without prefix", "1234567890abcdef1234567890abcdef12345678", false},
		{"Valid uppercase hex", "0x1234567890ABCDEF1234567890ABCDEF12345678", false},
		{"Valid with surrounding spaces", "  0x1234567890abcdef1234567890abcdef12345678  ", false},
		{"Valid zero address", "0x0000000000000000000000000000000000000000", false},
		{"Invalid - too short", "0x1234", true},
		{"Invalid - too long", "0x1234567890abcdef1234567890abcdef1234567890", true},
		{"Invalid - non hex characters", "0xzz34567890abcdef1234567890abcdef12345678", true},
		{"Invalid - empty", "", true},
		{"Invalid - only prefix", "0x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseAddress(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
			} else {
				assert.NoError(t, err)
				assert.Len(t, addr, AddressLength)
			}
		})
	}
}

func TestAddress_String_RoundTrip(t *testing.T) {
	original := "0x1234567890abcdef1234567890abcdef12345678"

	addr, err := ParseAddress(original)
	require.NoError(t, err)

	assert.Equal(t, original, addr.String())

	again, err := ParseAddress(addr.String())
	require.NoError(t, err)
	assert.Equal(t, addr, again)
}

func TestAddress_String_Lowercase(t *testing.T) {
	addr, err := ParseAddress("0xABCDEF1234567890ABCDEF1234567890ABCDEF12")
	require.NoError(t, err)

	assert.Equal(t, "0xabcdef1234567890abcdef1234567890abcdef12", addr.String())
}

func TestAddress_IsZero(t *testing.T) {
	assert.True(t, ZeroAddress.IsZero())

	addr := MustParseAddress("0x0000000000000000000000000000000000000001")
	assert.False(t, addr.IsZero())
}

func TestAddress_JSON(t *testing.T) {
	addr := MustParseAddress("0x1234567890abcdef1234567890abcdef12345678")

	data, err := json.Marshal(addr)
	require.NoError(t, err)
	assert.Equal(t, `"0x1234567890abcdef1234567890abcdef12345678"`, string(data))

	var decoded Address
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, addr, decoded)

	var bad Address
	assert.Error(t, json.Unmarshal([]byte(`"0x1234"`), &bad))
}

func TestAddress_Scan(t *testing.T) {
	want := MustParseAddress("0x1234567890abcdef1234567890abcdef12345678")

	var fromString Address
	require.NoError(t, fromString.Scan("0x1234567890abcdef1234567890abcdef12345678"))
	assert.Equal(t, want, fromString)

	var fromBytes Address
	require.NoError(t, fromBytes.Scan([]byte("0x1234567890abcdef1234567890abcdef12345678")))
	assert.Equal(t, want, fromBytes)

	var unsupported Address
	assert.Error(t, unsupported.Scan(42))
}

func TestMustParseAddress_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustParseAddress("not-an-address")
	})
}
