package speech

import (
	"context"
	"errors"
	"sync"
)

type fakeTTS struct {
	mu         sync.Mutex
	voices     [][]Voice
	voiceCalls int
	spoken     []Utterance
	errs       []error
	block      bool
	started    chan struct{}
}

func newFakeTTS() *fakeTTS {
	return &fakeTTS{started: make(chan struct{}, 16)}
}

func (f *fakeTTS) Voices(context.Context) ([]Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voiceCalls++
	if len(f.voices) == 0 {
		return nil, nil
	}
	v := f.voices[0]
	if len(f.voices) > 1 {
		f.voices = f.voices[1:]
	}
	return v, nil
}

func (f *fakeTTS) Speak(ctx context.Context, u Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	block := f.block
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.mu.Unlock()

	f.started <- struct{}{}

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

type fakeRecognition struct {
	events  chan Event
	mu      sync.Mutex
	stopped bool
}

func newFakeRecognition(events ...Event) *fakeRecognition {
	ch := make(chan Event, len(events)+8)
	for _, ev := range events {
		ch <- ev
	}
	return &fakeRecognition{events: ch}
}

func (r *fakeRecognition) Events() <-chan Event { return r.events }

func (r *fakeRecognition) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *fakeRecognition) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

type fakeSTT struct {
	mu        sync.Mutex
	recs      []*fakeRecognition
	startErrs []error
	starts    int
}

func (f *fakeSTT) Start(context.Context) (Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++

	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	if len(f.recs) == 0 {
		return newFakeRecognition(), nil
	}
	rec := f.recs[0]
	f.recs = f.recs[1:]
	return rec, nil
}

func (f *fakeSTT) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

var errBoom = errors.New("boom")
