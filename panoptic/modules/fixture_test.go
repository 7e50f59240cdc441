package modules

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/magicjudges/announcer/model"
)

// countingStage records how many passes ran and how many overlapped.
type countingStage struct {
	name string

	m          sync.Mutex
	runs       int
	inFlight   int
	maxOverlap int
	forced     []bool

	// When set, every pass blocks until a value is received.
	gate chan struct{}
	// Signals that a pass started.
	entered chan struct{}

	err error
}

func newCountingStage(name string) *countingStage {
	return &countingStage{name: name, entered: make(chan struct{}, 16)}
}

func (s *countingStage) Name() string { return s.name }

func (s *countingStage) Run(ctx context.Context, force bool) (model.StageResult, error) {
	s.m.Lock()
	s.runs++
	s.inFlight++
	if s.inFlight > s.maxOverlap {
		s.maxOverlap = s.inFlight
	}
	s.forced = append(s.forced, force)
	s.m.Unlock()

	s.entered <- struct{}{}
	if s.gate != nil {
		<-s.gate
	}

	s.m.Lock()
	s.inFlight--
	s.m.Unlock()
	return model.StageResult{Processed: 2, Created: 1, Skipped: 1}, s.err
}

func (s *countingStage) Runs() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.runs
}

func (s *countingStage) MaxOverlap() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.maxOverlap
}

func newEventBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{BlockPublishUntilSubscriberAck: true},
		watermill.NewStdLogger(false, false),
	)
}

var fixedNow = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
