package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ouest/trip-engine/events"
	"github.com/ouest/trip-engine/push"
)

func TestNewPublisher_NotConfigured(t *testing.T) {
	_, err := events.NewPublisher(context.Background(), "", "push-reports")
	assert.ErrorIs(t, err, events.ErrServiceNotConfigured)
}

func TestPublishReport(t *testing.T) {
	// GIVEN: a fake Pub/Sub server with the report topic
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	opts := []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
	admin, err := pubsub.NewClient(ctx, "ouest-test", opts...)
	require.NoError(t, err)
	defer admin.Close()
	_, err = admin.CreateTopic(ctx, "push-reports")
	require.NoError(t, err)

	publisher, err := events.NewPublisher(ctx, "ouest-test", "push-reports", opts...)
	require.NoError(t, err)
	defer publisher.Close()

	// WHEN
	require.NoError(t, publisher.PublishReport(ctx, push.Report{Sent: 3, Failed: 1, Total: 4}))

	// THEN
	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, events.EventType, msgs[0].Attributes["type"])

	var event events.ReportEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &event))
	assert.Equal(t, 3, event.Sent)
	assert.Equal(t, 1, event.Failed)
	assert.Equal(t, 4, event.Total)
	assert.False(t, event.PublishedAt.IsZero())
}
