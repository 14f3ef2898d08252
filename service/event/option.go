package event

import (
	"log/slog"

	"github.com/viant/afs"
	"github.com/viant/valen/service/messaging/fs"
	"github.com/viant/valen/service/messaging/memory"
)

// Option customises a Service.
type Option func(s *Service)

// WithMemoryConfig sets the in-memory queue configuration.
func WithMemoryConfig(config memory.Config) Option {
	return func(s *Service) {
		s.memoryConfig = config
	}
}

// WithFSConfig sets the file-backed queue configuration.
func WithFSConfig(config fs.Config) Option {
	return func(s *Service) {
		s.fsConfig = config
	}
}

// WithFS sets the storage service used by the file-backed queue.
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithJournalSize sets how many recent events are retained.
func WithJournalSize(size int) Option {
	return func(s *Service) {
		s.journalSize = size
	}
}

// WithBootID stamps every event with the boot session id.
func WithBootID(id string) Option {
	return func(s *Service) {
		s.bootID = id
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
