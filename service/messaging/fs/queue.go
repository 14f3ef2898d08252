package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/valen/internal/idgen"
	"github.com/viant/valen/service/messaging"
)

// ErrProcessed is returned when a message is acknowledged twice.
var ErrProcessed = errors.New("fs: message already processed")

const (
	dirPending    = "pending"
	dirProcessing = "processing"
	dirDone       = "done"
	dirDead       = "dead"
)

// Config configures the file-backed queue.
type Config struct {
	// BaseURL is the queue root; any afs-supported URL or local path.
	BaseURL    string `json:"baseURL" yaml:"baseURL"`
	MaxRetries int    `json:"maxRetries" yaml:"maxRetries"`
	// KeepDone retains acknowledged messages as a journal.
	KeepDone bool `json:"keepDone" yaml:"keepDone"`
}

// DefaultConfig returns a local journal under /tmp.
func DefaultConfig() Config {
	return Config{BaseURL: "/tmp/valen/events", MaxRetries: 1, KeepDone: true}
}

// Message is a file-backed queue message.
type Message[T any] struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Data      T         `json:"data"`
	Error     string    `json:"error,omitempty"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"createdAt"`

	queue     *Queue[T]
	mux       sync.Mutex
	processed bool
}

// T returns the payload.
func (m *Message[T]) T() *T { return &m.Data }

// Ack moves the message out of processing, into the journal when kept.
func (m *Message[T]) Ack() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	ctx := context.Background()
	if m.queue.config.KeepDone {
		return m.queue.move(ctx, m, dirProcessing, dirDone)
	}
	return m.queue.fs.Delete(ctx, m.queue.location(dirProcessing, m))
}

// Nack returns the message to pending while retries remain, otherwise to
// the dead-letter directory.
func (m *Message[T]) Nack(err error) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	target := dirPending
	if m.Retries > m.queue.config.MaxRetries {
		target = dirDead
	}
	return m.queue.move(context.Background(), m, dirProcessing, target)
}

// Queue is a messaging.Queue storing one JSON file per message through afs.
// Messages are consumed in publish order.
type Queue[T any] struct {
	fs     afs.Service
	config Config
	seq    atomic.Uint64
	mux    sync.Mutex
}

// NewQueue creates the queue directories when missing.
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("fs queue: base URL is empty")
	}
	ret := &Queue[T]{fs: fs, config: config}
	ret.seq.Store(uint64(time.Now().UnixNano()))
	ctx := context.Background()
	for _, dir := range []string{dirPending, dirProcessing, dirDone, dirDead} {
		URL := path.Join(config.BaseURL, dir)
		if ok, _ := fs.Exists(ctx, URL); ok {
			continue
		}
		if err := fs.Create(ctx, URL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", URL, err)
		}
	}
	return ret, nil
}

// Publish writes t to the pending directory.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	msg := &Message[T]{ID: idgen.New(), Seq: q.seq.Add(1), Data: *t, CreatedAt: time.Now()}
	return q.write(ctx, dirPending, msg)
}

// Consume claims the oldest pending message; it returns a nil message when
// none is pending.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mux.Lock()
	defer q.mux.Unlock()
	objects, err := q.list(ctx, dirPending)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, nil
	}
	msg, err := q.read(ctx, objects[0].URL())
	if err != nil {
		return nil, err
	}
	if err = q.move(ctx, msg, dirPending, dirProcessing); err != nil {
		return nil, err
	}
	return msg, nil
}

// Count returns the number of messages in the named state directory:
// pending, processing, done or dead.
func (q *Queue[T]) Count(ctx context.Context, state string) (int, error) {
	objects, err := q.list(ctx, state)
	return len(objects), err
}

func (q *Queue[T]) location(dir string, msg *Message[T]) string {
	return path.Join(q.config.BaseURL, dir, fmt.Sprintf("%020d-%s.json", msg.Seq, msg.ID))
}

func (q *Queue[T]) write(ctx context.Context, dir string, msg *Message[T]) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}
	return q.fs.Upload(ctx, q.location(dir, msg), file.DefaultFileOsMode, bytes.NewReader(data))
}

func (q *Queue[T]) move(ctx context.Context, msg *Message[T], from, to string) error {
	if err := q.write(ctx, to, msg); err != nil {
		return fmt.Errorf("failed to move message %s to %s: %w", msg.ID, to, err)
	}
	if err := q.fs.Delete(ctx, q.location(from, msg)); err != nil {
		return fmt.Errorf("failed to remove message %s from %s: %w", msg.ID, from, err)
	}
	return nil
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	msg := &Message[T]{queue: q}
	if err = json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", URL, err)
	}
	return msg, nil
}

func (q *Queue[T]) list(ctx context.Context, dir string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, path.Join(q.config.BaseURL, dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var ret []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			ret = append(ret, object)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
