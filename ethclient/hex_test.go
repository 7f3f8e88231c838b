package ethclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexBig(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0x0", "0"},
		{"0x", "0"}, // empty call result
		{"0xde0b6b3a7640000", "1000000000000000000"},
		{"0XDE0B6B3A7640000", "1000000000000000000"},
		{" 0x1 ", "1"},
	}
	for _, tc := range tests {
		n, err := parseHexBig(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, n.String(), tc.in)
	}

	_, err := parseHexBig("0xzz")
	assert.Error(t, err)
}

func TestParseHexUint64(t *testing.T) {
	n, err := parseHexUint64("0x5208")
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), n)

	_, err = parseHexUint64("0x")
	assert.Error(t, err)

	_, err = parseHexUint64("0xffffffffffffffff0")
	assert.Error(t, err)
}

func TestIsNullResult(t *testing.T) {
	assert.True(t, isNullResult(nil))
	assert.True(t, isNullResult(json.RawMessage("null")))
	assert.False(t, isNullResult(json.RawMessage(`"0x0"`)))
	assert.False(t, isNullResult(json.RawMessage("{}")))
}

func TestTopicAddressRoundTrip(t *testing.T) {
	topic := topicFromAddress(testAddress)
	assert.Equal(t, testAddress, addressFromTopic(topic))

	// The topic is the address left-padded to 32 bytes.
	assert.Equal(t, make([]byte, 12), topic[:12])
	assert.Equal(t, testAddress.Bytes(), topic[12:])
}
