package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "trip_update:E1", Key("trip_update", "E1"))
	assert.Equal(t, "service_alert:E1", Key("service_alert", "E1"))
}

func TestSeenOrMarkFailsOpen(t *testing.T) {
	// Nothing listens on this port; every call must report unseen instead
	// of blocking or erroring out.
	d := NewDedup("127.0.0.1:1")
	defer d.Close()

	ctx := context.Background()
	assert.False(t, d.SeenOrMark(ctx, "trip_update", "E1", time.Minute))
	assert.False(t, d.SeenOrMark(ctx, "trip_update", "E1", time.Minute))
}

func TestCloseWithoutConnection(t *testing.T) {
	d := NewDedup("127.0.0.1:1")
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}
