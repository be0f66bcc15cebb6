package wire

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/config"
	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/publisher"
)

func sqliteConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: ":memory:"},
		Lock: config.LockConfig{
			DefaultTTL:   time.Hour,
			PollInterval: 10 * time.Millisecond,
			RaceBackoff:  5 * time.Millisecond,
			MaxWait:      time.Second,
		},
	}
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, sqliteConfig(), zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, publisher.Nop{}, b.Events)
	require.Contains(t, b.Checks, config.DriverSQLite)
	assert.NoError(t, b.Checks[config.DriverSQLite](ctx))
	assert.NotContains(t, b.Checks, "rabbitmq")

	opts := b.Controller.Options()
	assert.Equal(t, time.Hour, opts.DefaultTTL)
	assert.Equal(t, time.Second, opts.MaxWait)

	out, err := b.Controller.Execute(ctx, domain.ExecuteRequest{OperationID: "wired"}, func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`true`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "true", string(out.Result))
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StoreConfig{Driver: "etcd"}, zap.NewNop())
	assert.EqualError(t, err, `unknown store driver "etcd"`)
}

func TestOpenPublisher_Disabled(t *testing.T) {
	pub, err := OpenPublisher(config.EventsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, pub.Publish(context.Background(), &domain.LockEvent{Type: domain.EventAcquired}))
}
