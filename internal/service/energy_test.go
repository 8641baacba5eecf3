package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milad/metermon/internal/domain"
	"github.com/milad/metermon/internal/repo"
)

const energyTopic = "metermon/cumulative_wh"

func newEnergy(st *domain.MeterState, store *fakeStore, pub *fakePublisher, log logrus.FieldLogger) *EnergyReporter {
	return NewEnergyReporter(st, store, pub, domain.DefaultPolicy(), energyTopic, time.Second, log)
}

func TestEnergyReporter_PublishesFlooredWattHours(t *testing.T) {
	t.Parallel()

	st := &domain.MeterState{PulseCount: 17999, StoredPulseCount: 17999}
	pub := &fakePublisher{}
	e := newEnergy(st, &fakeStore{}, pub, quietLogger())

	e.Report(context.Background())

	assert.Equal(t, []string{"4499"}, pub.Messages(energyTopic))
	assert.Equal(t, uint64(4499), e.Last().Value)
	assert.True(t, e.Last().Published())
}

func TestEnergyReporter_PersistsOnlyOnThresholdCrossings(t *testing.T) {
	t.Parallel()

	st := &domain.MeterState{}
	store := &fakeStore{}
	e := newEnergy(st, store, &fakePublisher{}, quietLogger())

	// One report per 500 pulses up to 9000.
	for c := uint64(0); c <= 9000; c += 500 {
		st.PulseCount = c
		e.Report(context.Background())
	}

	assert.Equal(t, []uint64{4000, 8000}, store.Saves())
	assert.Equal(t, uint64(8000), st.StoredPulseCount)
}

func TestEnergyReporter_ThresholdMeasuredFromLastWrite(t *testing.T) {
	t.Parallel()

	st := &domain.MeterState{}
	store := &fakeStore{}
	e := newEnergy(st, store, &fakePublisher{}, quietLogger())

	for _, c := range []uint64{3999, 4100, 8099, 8100} {
		st.PulseCount = c
		e.Report(context.Background())
	}
	assert.Equal(t, []uint64{4100, 8100}, store.Saves())
}

func TestEnergyReporter_StoreFailureRetriesNextInterval(t *testing.T) {
	t.Parallel()

	st := &domain.MeterState{PulseCount: 4000}
	store := &fakeStore{saveErr: errors.New("disk full")}
	log, hook := hookedLogger()
	e := newEnergy(st, store, &fakePublisher{}, log)

	e.Report(context.Background())
	assert.Zero(t, st.StoredPulseCount)
	assert.Equal(t, uint64(4000), st.PulseCount, "in-memory count unaffected")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	st.PulseCount = 4010
	e.Report(context.Background())

	assert.Equal(t, []uint64{4010}, store.Saves())
	assert.Equal(t, uint64(4010), st.StoredPulseCount)
}

func TestEnergyReporter_PublishFailureStillPersists(t *testing.T) {
	t.Parallel()

	st := &domain.MeterState{PulseCount: 4000}
	store := &fakeStore{}
	pub := &fakePublisher{publishErr: errBrokerDown}
	e := newEnergy(st, store, pub, quietLogger())

	e.Report(context.Background())

	assert.Empty(t, pub.Messages(energyTopic))
	assert.False(t, e.Last().Published())
	assert.Equal(t, []uint64{4000}, store.Saves())
}

func TestEnergyReporter_ConnectFailureSkipsPublish(t *testing.T) {
	t.Parallel()

	st := &domain.MeterState{PulseCount: 40}
	pub := &fakePublisher{connectErr: errBrokerDown}
	e := newEnergy(st, &fakeStore{}, pub, quietLogger())

	e.Report(context.Background())
	e.Report(context.Background())

	assert.Equal(t, 2, pub.connects, "one attempt per cycle, no retries within a cycle")
	assert.Empty(t, pub.Messages(energyTopic))
}

func TestEnergyReporter_RestoreFromStore(t *testing.T) {
	t.Parallel()

	st := &domain.MeterState{}
	pub := &fakePublisher{}
	e := newEnergy(st, &fakeStore{value: 12000}, pub, quietLogger())

	e.Restore(context.Background())

	assert.Equal(t, uint64(12000), st.PulseCount)
	assert.Equal(t, uint64(12000), st.StoredPulseCount)
	assert.Zero(t, pub.connects, "restore never publishes")
}

func TestEnergyReporter_RestoreFailuresStartFromZero(t *testing.T) {
	t.Parallel()

	for _, loadErr := range []error{
		fmt.Errorf("read: %w", repo.ErrCorrupt),
		fmt.Errorf("read: %w", repo.ErrNotFound),
		errors.New("i/o error"),
	} {
		st := &domain.MeterState{PulseCount: 99, StoredPulseCount: 99}
		log, hook := hookedLogger()
		e := newEnergy(st, &fakeStore{loadErr: loadErr}, &fakePublisher{}, log)

		e.Restore(context.Background())

		assert.Zero(t, st.PulseCount, loadErr)
		assert.Zero(t, st.StoredPulseCount, loadErr)
		assert.NotEmpty(t, hook.AllEntries(), "restore outcome is logged")
	}
}

func TestEnergyReporter_Flush(t *testing.T) {
	t.Parallel()

	st := &domain.MeterState{PulseCount: 12000, StoredPulseCount: 12000}
	store := &fakeStore{}
	e := newEnergy(st, store, &fakePublisher{}, quietLogger())

	e.Flush(context.Background())
	assert.Empty(t, store.Saves(), "nothing to flush")

	st.PulseCount = 12007
	e.Flush(context.Background())
	assert.Equal(t, []uint64{12007}, store.Saves())
	assert.Equal(t, uint64(12007), st.StoredPulseCount)
}
