// internal/stream/broadcaster.go
package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/session"
)

// Frame is one captured viewport image, stamped with its position in the
// feed's monotonic sequence.
type Frame struct {
	Seq        uint64
	Data       []byte // JPEG bytes
	CapturedAt time.Time
}

// Subscriber is one attached live-view consumer. Frames arrive on C; the
// channel is closed when the feed terminates or the subscriber detaches.
type Subscriber struct {
	C <-chan Frame

	ch   chan Frame
	once sync.Once
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broadcaster fans live frames out to any number of subscribers per
// session. A session's sampler goroutine runs only while it has at least
// one subscriber; detaching the last one stops capture entirely.
type Broadcaster struct {
	cfg    config.StreamConfig
	logger *zap.Logger

	mu    sync.Mutex
	feeds map[string]*feed
}

// feed is the per-session sampling state.
type feed struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	subs map[*Subscriber]struct{}
	seq  uint64
}

// NewBroadcaster creates the frame broadcaster.
func NewBroadcaster(cfg config.StreamConfig, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		cfg:    cfg,
		logger: logger.Named("stream"),
		feeds:  make(map[string]*feed),
	}
}

// Subscribe attaches a live-view consumer to a session's frame feed,
// starting the sampler if this is the first subscriber. A late or
// re-attached subscriber receives only frames captured after attachment;
// there is no replay.
func (b *Broadcaster) Subscribe(ctx context.Context, sess *session.Session) (*Subscriber, error) {
	switch sess.Status() {
	case schemas.SessionActive, schemas.SessionInitializing:
	default:
		return nil, schemas.ErrSessionClosed
	}

	buffer := b.cfg.SubscriberBuffer
	if buffer <= 0 {
		buffer = 10
	}
	sub := &Subscriber{ch: make(chan Frame, buffer)}
	sub.C = sub.ch

	b.mu.Lock()
	f, ok := b.feeds[sess.ID]
	if !ok {
		samplerCtx, cancel := context.WithCancel(context.Background())
		f = &feed{
			cancel: cancel,
			done:   make(chan struct{}),
			subs:   make(map[*Subscriber]struct{}),
		}
		b.feeds[sess.ID] = f
		go b.sample(samplerCtx, sess, f)
	}
	b.mu.Unlock()

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	b.logger.Debug("Live view subscriber attached.", zap.String("session_id", sess.ID))
	return sub, nil
}

// Unsubscribe detaches a consumer. When the last subscriber leaves, the
// session's sampler stops and its sequence counter is discarded, so a
// fresh subscription starts a fresh sequence.
func (b *Broadcaster) Unsubscribe(sess *session.Session, sub *Subscriber) {
	b.mu.Lock()
	f, ok := b.feeds[sess.ID]
	if !ok {
		b.mu.Unlock()
		sub.close()
		return
	}

	f.mu.Lock()
	delete(f.subs, sub)
	remaining := len(f.subs)
	f.mu.Unlock()

	if remaining == 0 {
		delete(b.feeds, sess.ID)
		b.mu.Unlock()
		f.cancel()
		<-f.done
	} else {
		b.mu.Unlock()
	}
	sub.close()
	b.logger.Debug("Live view subscriber detached.",
		zap.String("session_id", sess.ID), zap.Int("remaining", remaining))
}

// Shutdown stops every active sampler.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	feeds := b.feeds
	b.feeds = make(map[string]*feed)
	b.mu.Unlock()

	for _, f := range feeds {
		f.cancel()
		<-f.done
		f.mu.Lock()
		for sub := range f.subs {
			sub.close()
		}
		f.mu.Unlock()
	}
}

// sample is the per-session capture loop. It paces captures with a rate
// limiter rather than a fixed ticker so a slow screenshot does not cause a
// burst of catch-up frames afterwards.
func (b *Broadcaster) sample(ctx context.Context, sess *session.Session, f *feed) {
	defer close(f.done)

	fps := b.cfg.FramesPerSecond
	if fps <= 0 {
		fps = 5
	}
	limiter := rate.NewLimiter(rate.Limit(fps), 1)
	log := b.logger.With(zap.String("session_id", sess.ID))
	log.Info("Frame sampler started.", zap.Float64("fps", fps))

	for {
		if err := limiter.Wait(ctx); err != nil {
			log.Info("Frame sampler stopped.")
			return
		}
		switch sess.Status() {
		case schemas.SessionActive:
		case schemas.SessionInitializing:
			// No handle to sample yet.
			continue
		default:
			log.Info("Session no longer active; terminating frame feed.")
			b.terminate(sess, f)
			return
		}

		data, err := b.capture(ctx, sess)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Captures routinely fail mid-navigation; skip the frame and
			// let the next tick retry. Only a dead handle ends the feed.
			handle := sess.Handle()
			if handle == nil || !handle.IsAlive(ctx) {
				log.Warn("Browser handle dead; terminating frame feed.")
				b.terminate(sess, f)
				return
			}
			log.Debug("Frame capture failed; skipping.", zap.Error(err))
			continue
		}

		f.mu.Lock()
		f.seq++
		frame := Frame{Seq: f.seq, Data: data, CapturedAt: time.Now().UTC()}
		for sub := range f.subs {
			select {
			case sub.ch <- frame:
			default:
				// Slow consumer: drop its oldest buffered frame so the
				// stream stays fresh instead of stalling capture.
				select {
				case <-sub.ch:
				default:
				}
				select {
				case sub.ch <- frame:
				default:
				}
			}
		}
		f.mu.Unlock()
	}
}

func (b *Broadcaster) capture(ctx context.Context, sess *session.Session) ([]byte, error) {
	handle := sess.Handle()
	if handle == nil {
		return nil, schemas.ErrSessionDead
	}
	if b.cfg.SerializeCapture {
		var data []byte
		err := sess.WithRunLock(func() error {
			var cerr error
			data, cerr = handle.Screenshot(ctx)
			return cerr
		})
		return data, err
	}
	return handle.Screenshot(ctx)
}

// terminate closes every subscriber channel and forgets the feed.
func (b *Broadcaster) terminate(sess *session.Session, f *feed) {
	b.mu.Lock()
	if b.feeds[sess.ID] == f {
		delete(b.feeds, sess.ID)
	}
	b.mu.Unlock()

	f.mu.Lock()
	for sub := range f.subs {
		sub.close()
	}
	f.subs = make(map[*Subscriber]struct{})
	f.mu.Unlock()
}
