package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/valen/service/messaging"
	"github.com/viant/valen/service/messaging/fs"
	"github.com/viant/valen/service/messaging/memory"
)

// DefaultJournalSize is the number of recent events kept for inspection.
const DefaultJournalSize = 128

// Service publishes kernel events to a queue and keeps a journal of the
// events consumed from it.
type Service struct {
	vendor       messaging.Vendor
	queue        messaging.Queue[Event[any]]
	journal      *Journal
	journalSize  int
	memoryConfig memory.Config
	fsConfig     fs.Config
	fs           afs.Service
	bootID       string
	logger       *slog.Logger

	mux      sync.Mutex
	listener *Listener[any]

	handlerMux sync.RWMutex
	handler    func(*Event[any])
}

// New creates an event service backed by the given queue vendor.
func New(vendor messaging.Vendor, options ...Option) (*Service, error) {
	ret := &Service{
		vendor:       vendor,
		journalSize:  DefaultJournalSize,
		memoryConfig: memory.DefaultConfig(),
		fsConfig:     fs.DefaultConfig(),
		logger:       slog.Default(),
	}
	for _, opt := range options {
		opt(ret)
	}
	ret.journal = NewJournal(ret.journalSize)
	switch vendor {
	case messaging.VendorMemory, "":
		ret.vendor = messaging.VendorMemory
		ret.queue = memory.NewQueue[Event[any]](ret.memoryConfig)
	case messaging.VendorFS:
		if ret.fs == nil {
			ret.fs = afs.New()
		}
		queue, err := fs.NewQueue[Event[any]](ret.fs, ret.fsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event queue: %w", err)
		}
		ret.queue = queue
	default:
		return nil, fmt.Errorf("unsupported queue vendor: %s", vendor)
	}
	return ret, nil
}

// Vendor returns the queue vendor in use.
func (s *Service) Vendor() messaging.Vendor { return s.vendor }

// Journal returns the journal of consumed events.
func (s *Service) Journal() *Journal { return s.journal }

// Publish wraps data into an event of the given kind and queues it. A full
// in-memory queue drops the event and reports messaging.ErrQueueFull.
func Publish[T any](ctx context.Context, s *Service, kind Kind, taskID int64, data T) error {
	if s == nil {
		return nil
	}
	e := NewEvent[any](&Context{BootID: s.bootID, Kind: kind, TaskID: taskID}, data)
	if err := s.queue.Publish(ctx, e); err != nil {
		if errors.Is(err, messaging.ErrQueueFull) {
			s.logger.Debug("event dropped", "kind", kind)
		}
		return err
	}
	return nil
}

// Drain consumes every event currently available into the journal and
// returns how many were consumed.
func (s *Service) Drain(ctx context.Context) (int, error) {
	drained := 0
	for {
		msg, err := s.next(ctx)
		if err != nil || msg == nil {
			return drained, err
		}
		s.record(msg.T())
		if err = msg.Ack(); err != nil {
			return drained, err
		}
		drained++
	}
}

// Follow starts a listener that journals every event and passes it to
// handler. A previous listener is stopped first. The handler also sees
// events consumed by Drain, including after Stop.
func (s *Service) Follow(handler func(*Event[any])) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	s.handlerMux.Lock()
	s.handler = handler
	s.handlerMux.Unlock()
	s.listener = NewListener[any](s.queue, s.record, s.logger)
	s.listener.Start()
}

// Following reports whether a listener is running.
func (s *Service) Following() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.listener != nil
}

// Stop stops the listener started by Follow.
func (s *Service) Stop() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
	}
}

func (s *Service) record(e *Event[any]) {
	s.journal.Append(e)
	s.handlerMux.RLock()
	handler := s.handler
	s.handlerMux.RUnlock()
	if handler != nil {
		handler(e)
		return
	}
	s.logger.Debug("kernel event", "event", e.String())
}

type tryConsumer interface {
	TryConsume() (messaging.Message[Event[any]], bool)
}

func (s *Service) next(ctx context.Context) (messaging.Message[Event[any]], error) {
	if queue, ok := s.queue.(tryConsumer); ok {
		msg, _ := queue.TryConsume()
		return msg, nil
	}
	return s.queue.Consume(ctx)
}
