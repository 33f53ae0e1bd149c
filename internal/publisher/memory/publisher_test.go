package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id1, err := pub.Publish(ctx, "ingest-complete", admission.IngestEvent{Year: 2021, Regions: 3})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(ctx, "ingest-complete", admission.IngestEvent{Year: 2022, FailedRegions: []string{"b"}})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	msgs[0].Topic = "modified"
	require.Equal(t, "ingest-complete", pub.Messages()[0].Topic)

	events, err := pub.Events()
	require.NoError(t, err)
	require.Equal(t, 2021, events[0].Year)
	require.Equal(t, []string{"b"}, events[1].FailedRegions)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "t", make(chan int))
	require.Error(t, err)
	require.Empty(t, New().Messages())
}
