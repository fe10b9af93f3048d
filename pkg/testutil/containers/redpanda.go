//go:build integration

package containers

import (
	"context"
	"testing"

	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
)

// RedpandaContainer is a Kafka-compatible broker for event tests.
type RedpandaContainer struct {
	Container *tcredpanda.Container
	Broker    string
}

// GetRedpanda starts a single shared broker on first use.
func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.redpandaOnce.Do(func() {
		ctx := context.Background()
		container, err := tcredpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.1.7",
			tcredpanda.WithAutoCreateTopics(),
		)
		if err != nil {
			m.redpandaErr = err
			return
		}
		broker, err := container.KafkaSeedBroker(ctx)
		if err != nil {
			_ = container.Terminate(ctx)
			m.redpandaErr = err
			return
		}
		m.redpanda = &RedpandaContainer{Container: container, Broker: broker}
	})
	if m.redpandaErr != nil {
		t.Fatalf("failed to start redpanda container: %v", m.redpandaErr)
	}
	return m.redpanda
}
