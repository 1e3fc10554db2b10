package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := &Message{Type: MessageTypeHeader, Name: "a.png", Mime: "image/png", Size: 42}

	raw, err := msg.Encode()
	require.NoError(t, err)

	parsed, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestParseMessageRejectsMissingType(t *testing.T) {
	_, err := ParseMessage([]byte(`{"name":"x"}`))
	assert.Error(t, err)

	_, err = ParseMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestTextEncodingRoundTrip(t *testing.T) {
	for _, text := range []string{
		"hello",
		"héllo 🌍",
		"",
		"line\nbreaks\tand \"quotes\"",
	} {
		decoded, err := DecodeText(EncodeText(text))
		require.NoError(t, err)
		assert.Equal(t, text, decoded)
	}
}

func TestIsSessionFrame(t *testing.T) {
	for _, frameType := range []string{
		MessageTypeHeader, MessageTypePartition, MessageTypePartitionReceived,
		MessageTypeProgress, MessageTypeTransferComplete, MessageTypeText, MessageTypeChunk,
	} {
		assert.True(t, IsSessionFrame(frameType), frameType)
	}
	assert.False(t, IsSessionFrame("peers"))
	assert.False(t, IsSessionFrame("signal"))
}
