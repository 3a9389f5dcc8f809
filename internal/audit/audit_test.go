package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"webdir/pkg/platform/sentinel"
	"webdir/pkg/requestcontext"
)

func TestPublisher_StampsRequestClockAndID(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), now), "req-1")

	require.NoError(t, pub.Emit(ctx, Event{Action: ActionVoteCast, Subject: "m-1"}))

	events, err := store.ListBySubject(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestInMemoryStore_ListRecentNewestFirst(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	for _, subject := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(ctx, Event{Subject: subject}))
	}

	events, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].Subject)
	assert.Equal(t, "b", events[1].Subject)
}

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		p.records = append(p.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestKafkaStore_ProducesKeyedJSON(t *testing.T) {
	producer := &recordingProducer{}
	store := NewKafkaStore(producer, "webdir.audit")

	event := Event{Action: ActionSiteMarkedDead, Subject: "site-1", Timestamp: time.Unix(100, 0).UTC()}
	require.NoError(t, store.Append(context.Background(), event))

	require.Len(t, producer.records, 1)
	rec := producer.records[0]
	assert.Equal(t, "webdir.audit", rec.Topic)
	assert.Equal(t, []byte("site-1"), rec.Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, ActionSiteMarkedDead, decoded.Action)
}

func TestKafkaStore_SurfacesProduceError(t *testing.T) {
	producer := &recordingProducer{err: errors.New("broker down")}
	store := NewKafkaStore(producer, "webdir.audit")

	err := store.Append(context.Background(), Event{Subject: "x"})
	assert.ErrorContains(t, err, "broker down")
}

func TestWorker_DropsWhenFullAndFlushesOnShutdown(t *testing.T) {
	store := NewInMemoryStore()
	w := NewWorker(store, 1, nil)
	ctx := context.Background()

	require.NoError(t, w.Append(ctx, Event{Subject: "first"}))
	assert.ErrorIs(t, w.Append(ctx, Event{Subject: "second"}), sentinel.ErrUnavailable)

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, w.Run(runCtx), context.Canceled)

	events, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "first", events[0].Subject)
}
