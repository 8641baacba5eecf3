package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/milad/metermon/internal/domain"
	"github.com/milad/metermon/internal/repo"
)

var errBrokerDown = errors.New("broker down")

type published struct {
	Topic   string
	Payload string
}

type fakePublisher struct {
	mu         sync.Mutex
	connectErr error
	publishErr error
	connects   int
	msgs       []published
}

func (f *fakePublisher) EnsureConnected(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, published{Topic: topic, Payload: string(payload)})
	return nil
}

func (f *fakePublisher) Messages(topic string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.msgs {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	value   uint64
	loadErr error
	saveErr error
	saves   []uint64
}

func (f *fakeStore) Load(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return 0, f.loadErr
	}
	return f.value, nil
}

func (f *fakeStore) Save(_ context.Context, n uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.value = n
	f.saves = append(f.saves, n)
	return nil
}

func (f *fakeStore) Saves() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.saves...)
}

var _ repo.CountStore = (*fakeStore)(nil)

type toggleCounter struct{ n int }

func (t *toggleCounter) Toggle() { t.n++ }

type stepClock struct {
	mu   sync.Mutex
	next domain.Ticks
	step domain.Ticks
}

func (c *stepClock) Ticks() domain.Ticks {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.next
	c.next += c.step
	return ts
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func hookedLogger() (logrus.FieldLogger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}
