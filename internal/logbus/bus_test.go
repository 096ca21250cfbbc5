package logbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotKeepsNewestWithContiguousSeq(t *testing.T) {
	b := New(3)
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.Publish("log", i)
	}

	snap := b.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, int64(3), snap[0].Seq)
	assert.Equal(t, int64(4), snap[1].Seq)
	assert.Equal(t, int64(5), snap[2].Seq)
	assert.Equal(t, 2, snap[0].Data)
}

func TestSubscribeReceivesLiveMessages(t *testing.T) {
	b := New(8)
	defer b.Close()

	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Publish("job", "payload")

	msg := <-ch
	assert.Equal(t, "job", msg.Type)
	assert.Equal(t, "payload", msg.Data)
	assert.Equal(t, int64(1), msg.Seq)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New(8)
	defer b.Close()

	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish("log", "first")
	b.Publish("log", "dropped")

	msg := <-ch
	assert.Equal(t, "first", msg.Data)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected message %v", extra)
	default:
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := New(8)
	defer b.Close()

	_, cancel := b.Subscribe(1)
	cancel()
	cancel()

	// Publishing after cancel must not panic on the removed channel.
	b.Publish("log", "after")
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := New(8)
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Close()

	_, open := <-ch
	assert.False(t, open)

	b.Publish("log", "ignored")
	assert.Empty(t, b.Snapshot())
}

func TestLogWrapsFields(t *testing.T) {
	b := New(8)
	defer b.Close()

	b.Log("warn", "something happened", map[string]any{"jobId": "j1"})

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	data, ok := snap[0].Data.(LogData)
	require.True(t, ok)
	assert.Equal(t, "warn", data.Level)
	assert.Equal(t, "something happened", data.Msg)
	assert.Equal(t, "j1", data.Fields["jobId"])
}
