package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher рассылает подписчикам уведомления об изменениях директории.
//
// fsnotify запускается при первой подписке. Если наблюдение создать
// не удалось, подписчики просто не получают событий и опираются
// на опрос с backoff.
type dirWatcher struct {
	dir    string
	logger *slog.Logger

	once    sync.Once
	mu      sync.Mutex
	subs    map[chan struct{}]struct{}
	watcher *fsnotify.Watcher
	closed  bool
}

func newDirWatcher(dir string, logger *slog.Logger) *dirWatcher {
	return &dirWatcher{
		dir:    dir,
		logger: logger,
		subs:   make(map[chan struct{}]struct{}),
	}
}

// subscribe возвращает канал уведомлений и функцию отписки.
// Канал буферизован: серия событий схлопывается в одно уведомление.
func (w *dirWatcher) subscribe() (<-chan struct{}, func()) {
	w.once.Do(w.start)

	ch := make(chan struct{}, 1)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		delete(w.subs, ch)
		w.mu.Unlock()
	}
}

func (w *dirWatcher) start() {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, falling back to polling", "dir", w.dir, "error", err)
		return
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		w.logger.Warn("cannot watch directory, falling back to polling", "dir", w.dir, "error", err)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = fw.Close()
		return
	}
	w.watcher = fw
	w.mu.Unlock()

	go w.run(fw)
}

func (w *dirWatcher) run(fw *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				w.broadcast()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", "dir", w.dir, "error", err)
			// Пропущенные события компенсирует опрос.
			w.broadcast()
		}
	}
}

func (w *dirWatcher) broadcast() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close останавливает наблюдение.
func (w *dirWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

// backoff — интервал опроса, удваивающийся до limit.
type backoff struct {
	base, limit, cur time.Duration
}

func newBackoff(base, limit time.Duration) *backoff {
	return &backoff{base: base, limit: limit, cur: base}
}

// next возвращает текущий интервал и увеличивает следующий.
func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.limit {
		b.cur = b.limit
	}
	return d
}

// reset возвращает интервал к базовому.
func (b *backoff) reset() {
	b.cur = b.base
}

// resetTimer безопасно перезапускает таймер.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
