package embeddednats

import (
	"context"
	"testing"

	"datacatalog/pkg/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *EmbeddedNATS {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Port = RandomPort
	cfg.DataDir = t.TempDir()

	en, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, en.Start())
	t.Cleanup(func() { _ = en.Shutdown(context.Background()) })
	return en
}

func TestStartAndHealth(t *testing.T) {
	en := startTestServer(t)

	assert.NoError(t, en.HealthCheck())
	assert.NotEmpty(t, en.ClientURL())
}

func TestPublishActivity_Deduplicates(t *testing.T) {
	en := startTestServer(t)
	require.NoError(t, en.CreateCatalogStreams())
	// Declaring twice is harmless.
	require.NoError(t, en.CreateCatalogStreams())

	ev := &shared.Event{ID: "act-1", Type: shared.ActivityNewPackage, UserID: "u", ObjectID: "p"}
	require.NoError(t, en.PublishActivity(context.Background(), ev))
	assert.Equal(t, "catalog.activity.package.new", ev.Subject)
	assert.Equal(t, shared.EventSource, ev.Source)
	assert.False(t, ev.Timestamp.IsZero())

	require.NoError(t, en.PublishActivity(context.Background(), &shared.Event{ID: "act-1", Type: shared.ActivityNewPackage}))

	info, err := en.JetStream().StreamInfo(shared.StreamActivity)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestPublishActivity_RequiresID(t *testing.T) {
	en := startTestServer(t)
	require.NoError(t, en.CreateCatalogStreams())

	err := en.PublishActivity(context.Background(), &shared.Event{Type: shared.ActivityNewGroup})
	assert.Error(t, err)
}

func TestHealthCheck_NotStarted(t *testing.T) {
	en, err := New(nil)
	require.NoError(t, err)
	assert.Error(t, en.HealthCheck())
}
