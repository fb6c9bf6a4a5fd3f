package notify

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/queue"
)

func TestQueueSenderRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sender := QueueSender{
		Queue:  queue.Enqueuer{R: client, Prefix: "vilmart"},
		Logger: zerolog.Nop(),
	}
	require.NoError(t, sender.Send("asha@example.org", "Reset your password", "<p>link</p>"))

	outbox := &common.InMemoryEmail{}
	worker := NewEmailWorker(client, "vilmart", outbox, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(outbox.Outbox()) == 1
	}, 2*time.Second, 20*time.Millisecond)
	got := outbox.Outbox()
	require.Equal(t, "asha@example.org", got[0].To)
	require.Equal(t, "Reset your password", got[0].Subject)
	cancel()
}
