package roomstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyFieldsNestedAndDelete(t *testing.T) {
	doc := []byte(`{"rev":3,"status":"waiting","gameState":{"turn":"w","moves":[]},"blackPlayer":{"id":"x"}}`)
	out, err := ApplyFields(doc, map[string]any{
		"status":          "active",
		"gameState/turn":  "b",
		"gameState/moves": []map[string]string{{"from": "e2", "to": "e4"}},
		"blackPlayer":     nil,
		"whitePlayer/id":  "host",
	})
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	require.Equal(t, "active", got["status"])

	gs := got["gameState"].(map[string]any)
	require.Equal(t, "b", gs["turn"])
	require.Len(t, gs["moves"], 1)
	require.NotContains(t, got, "blackPlayer")
	require.Equal(t, "host", got["whitePlayer"].(map[string]any)["id"])
	require.EqualValues(t, 3, Revision(out), "ApplyFields must not touch rev")
}

func TestApplyFieldsRejectsEmptyPath(t *testing.T) {
	_, err := ApplyFields([]byte(`{}`), map[string]any{"/": 1})
	require.Error(t, err)
}

func TestStampAndNext(t *testing.T) {
	next, err := Next([]byte(`{"rev":7}`), []byte(`{"a":1}`))
	require.NoError(t, err)
	require.EqualValues(t, 8, Revision(next))

	first, err := Next(nil, []byte(`{"a":1}`))
	require.NoError(t, err)
	require.EqualValues(t, 1, Revision(first))

	_, err = Stamp([]byte(`[1,2]`), 1)
	require.Error(t, err, "non-object document")
}

func TestFeedDropsStaleAndCoalesces(t *testing.T) {
	got := make(chan int64, 16)
	block := make(chan struct{})
	f := NewFeed(func(doc []byte) {
		<-block
		got <- Revision(doc)
	})
	defer f.Close()

	f.Offer([]byte(`{"rev":1}`))
	// wait until the first delivery is in progress
	time.Sleep(50 * time.Millisecond)
	f.Offer([]byte(`{"rev":3}`))
	f.Offer([]byte(`{"rev":2}`))
	f.Offer([]byte(`{"rev":4}`))
	close(block)

	require.EqualValues(t, 1, <-got)
	require.EqualValues(t, 4, <-got, "expected coalesced rev")
	select {
	case r := <-got:
		require.Failf(t, "unexpected extra delivery", "rev=%d", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFeedDeletionResetsFloor(t *testing.T) {
	got := make(chan []byte, 4)
	f := NewFeed(func(doc []byte) { got <- doc })
	defer f.Close()

	f.Offer([]byte(`{"rev":5}`))
	require.EqualValues(t, 5, Revision(<-got))
	f.Offer(nil)
	require.Nil(t, <-got, "expected deletion")
	f.Offer([]byte(`{"rev":1}`))
	require.EqualValues(t, 1, Revision(<-got), "recreated doc not delivered")
}

func TestFeedCloseStopsDelivery(t *testing.T) {
	got := make(chan []byte, 1)
	f := NewFeed(func(doc []byte) { got <- doc })
	f.Close()
	f.Close()
	f.Offer([]byte(`{"rev":1}`))
	select {
	case <-got:
		require.Fail(t, "delivery after Close")
	case <-time.After(30 * time.Millisecond):
	}
}
