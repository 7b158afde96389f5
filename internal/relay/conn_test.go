package relay

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/modgate/internal/statestore"
)

func TestConn_RoundTrip(t *testing.T) {
	// --- Arrange ---
	var wire bytes.Buffer
	sender := NewConn(nil, &wire)
	snapshot := statestore.Snapshot{"demo": json.RawMessage(`{"flag":0}`)}
	update := statestore.Update{Module: "demo", Value: json.RawMessage(`{"flag":1}`), Origin: "w1", Seq: 3}

	// --- Act ---
	require.NoError(t, sender.Send(NewSnapshot(snapshot)))
	require.NoError(t, sender.Send(NewReady("w1")))
	require.NoError(t, sender.Forwarder().Forward(update))

	receiver := NewConn(&wire, io.Discard)
	first, err := receiver.Receive()
	require.NoError(t, err)
	second, err := receiver.Receive()
	require.NoError(t, err)
	third, err := receiver.Receive()
	require.NoError(t, err)
	_, err = receiver.Receive()

	// --- Assert ---
	assert.Equal(t, KindSnapshot, first.Kind)
	assert.Equal(t, snapshot, first.Snapshot())
	assert.Equal(t, KindReady, second.Kind)
	assert.Equal(t, "w1", second.Worker)
	assert.Equal(t, KindUpdate, third.Kind)
	assert.Equal(t, update, third.Update())
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_RejectsOversizeFrame(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)

	_, err := NewConn(bytes.NewReader(header[:]), io.Discard).Receive()

	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestConn_TruncatedFrame(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, NewConn(nil, &wire).Send(NewReady("w1")))
	truncated := wire.Bytes()[:wire.Len()-1]

	_, err := NewConn(bytes.NewReader(truncated), io.Discard).Receive()

	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF), "a partial frame is not a clean close")
}

func TestPayloadCodec(t *testing.T) {
	env := NewUpdate(statestore.Update{Module: "stats", Value: json.RawMessage(`{"hits":2}`), Origin: "w2", Seq: 9})

	data, err := encodePayload(env)
	require.NoError(t, err)
	got, err := decodePayload(string(data))
	require.NoError(t, err)
	assert.Equal(t, env, got)

	_, err = decodePayload("\xc1")
	require.Error(t, err)
}
