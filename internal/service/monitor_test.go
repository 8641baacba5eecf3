package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milad/metermon/internal/domain"
)

func testPolicy(energy, power time.Duration) domain.Policy {
	p := domain.DefaultPolicy()
	p.EnergyInterval = energy
	p.PowerInterval = power
	return p
}

func startMonitor(t *testing.T, m *Monitor) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("monitor did not stop")
		}
	}
}

func TestMonitor_RestartDoesNotPublishStaleEnergy(t *testing.T) {
	t.Parallel()

	store := &fakeStore{value: 12000}
	pub := &fakePublisher{}
	m := NewMonitor(Config{Policy: testPolicy(time.Hour, time.Hour)}, store, pub, nil, quietLogger())

	stop := startMonitor(t, m)
	require.Eventually(t, func() bool {
		s, _ := m.State(context.Background())
		return s.StoredPulseCount == 12000
	}, 2*time.Second, 5*time.Millisecond)

	s, err := m.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12000), s.PulseCount)
	assert.False(t, s.Energy.Published())

	stop()
	assert.Empty(t, pub.Messages(energyTopic))
	assert.Empty(t, store.Saves(), "nothing new to flush")
}

func TestMonitor_EndToEnd(t *testing.T) {
	t.Parallel()

	store := &fakeStore{value: 12000}
	pub := &fakePublisher{}
	cfg := Config{
		Policy: testPolicy(time.Hour, 20*time.Millisecond),
		Clock:  &stepClock{next: 1000, step: 1000},
	}
	m := NewMonitor(cfg, store, pub, nil, quietLogger())
	stop := startMonitor(t, m)

	require.Eventually(t, func() bool {
		s, _ := m.State(context.Background())
		return s.StoredPulseCount == 12000
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		m.Capture().Edge()
	}

	require.Eventually(t, func() bool {
		s, _ := m.State(context.Background())
		return s.PulseCount == 12003 && s.PulseDeltaMs == 1000
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(pub.Messages(powerTopic)) > 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "900", pub.Messages(powerTopic)[0])

	require.Eventually(t, func() bool {
		s, _ := m.State(context.Background())
		return s.Power.Published() && s.Power.Value == 900
	}, 2*time.Second, 5*time.Millisecond)

	stop()

	assert.Empty(t, pub.Messages(energyTopic))
	assert.Equal(t, []uint64{12003}, store.Saves(), "shutdown flushes the unstored pulses")
}

func TestMonitor_EnergyTimerPublishes(t *testing.T) {
	t.Parallel()

	store := &fakeStore{value: 17999}
	pub := &fakePublisher{}
	m := NewMonitor(Config{Policy: testPolicy(20*time.Millisecond, time.Hour)}, store, pub, nil, quietLogger())
	stop := startMonitor(t, m)
	defer stop()

	require.Eventually(t, func() bool {
		return len(pub.Messages(energyTopic)) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "4499", pub.Messages(energyTopic)[0])
}

func TestMonitor_RunTwice(t *testing.T) {
	t.Parallel()

	m := NewMonitor(Config{Policy: testPolicy(time.Hour, time.Hour)}, &fakeStore{}, &fakePublisher{}, nil, quietLogger())
	stop := startMonitor(t, m)
	defer stop()
	require.Eventually(t, m.started.Load, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, m.Run(context.Background()), ErrAlreadyStarted)
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	c := Config{}.withDefaults()
	assert.Equal(t, DefaultTopics(), c.Topics)
	assert.Equal(t, DefaultPublishTimeout, c.PublishTimeout)
	assert.Equal(t, 256, c.QueueSize)
	assert.NotNil(t, c.Clock)
}
