// scheduler — клиентский планировщик проактивного refresh access-токена.
//
// Один таймер на токен: срабатывает за Buffer до exp. Одновременно выполняется
// не больше одного refresh; триггер во время refresh отбрасывается (не ставится
// в очередь и не повторяется). После неудачи повтор не планируется:
// следующий триггер — Expired() или новый Schedule().
//
// Токен, полученный самим планировщиком, не запускает немедленный refresh,
// даже если живёт меньше Buffer: таймер взводится на max(остаток/2, MinDelay).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pribylovaa/storefront-session/internal/token"
)

const (
	DefaultBuffer   = 5 * time.Minute
	DefaultTimeout  = 10 * time.Second
	DefaultMinDelay = 30 * time.Second
)

// Refresher выполняет обмен refresh-токена на новый access-токен.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefreshFunc — адаптер функции к Refresher.
type RefreshFunc func(ctx context.Context) (string, error)

func (f RefreshFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// Options — параметры планировщика. Нулевые значения заменяются умолчаниями.
type Options struct {
	// Buffer — за сколько до exp обновлять токен.
	Buffer time.Duration
	// Timeout — предел одного вызова Refresher.
	Timeout time.Duration
	// MinDelay — нижняя граница задержки для токена, только что полученного refresh'ем.
	MinDelay time.Duration
	Logger  *slog.Logger
	// OnToken вызывается с новым токеном после успешного refresh.
	OnToken func(token string)
	// Decode возвращает срок токена; по умолчанию token.Expiry.
	Decode func(token string) (time.Time, error)
	// Now — источник времени; по умолчанию time.Now.
	Now func() time.Time
}

// Scheduler безопасен для конкурентного использования.
type Scheduler struct {
	refresher Refresher
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	current    string
	timer      *time.Timer
	gen        uint64
	refreshing bool
	stopped    bool
}

// New создаёт планировщик; до первого Schedule/Expired он ничего не делает.
func New(r Refresher, opts Options) *Scheduler {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = DefaultMinDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Decode == nil {
		opts.Decode = token.Expiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		refresher: r,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Schedule взводит таймер для токена. Повторный вызов с уже запланированным
// токеном ничего не делает; новый токен снимает прежний таймер.
// Если срок не читается или уже внутри Buffer, refresh запускается сразу.
func (s *Scheduler) Schedule(tok string) { s.schedule(tok, false) }

func (s *Scheduler) schedule(tok string, refreshed bool) {
	s.mu.Lock()

	if s.stopped || (tok == s.current && (s.timer != nil || s.refreshing)) {
		s.mu.Unlock()
		return
	}

	s.disarmLocked()
	s.current = tok

	exp, err := s.opts.Decode(tok)
	remaining := exp.Sub(s.opts.Now())
	delay := remaining - s.opts.Buffer
	if err != nil || delay <= 0 {
		if !refreshed {
			s.mu.Unlock()

			if err != nil {
				s.opts.Logger.Debug("token_expiry_unknown", "err", err)
			}
			s.trigger("immediate")
			return
		}

		// Issuer выдаёт токены короче Buffer: немедленный refresh зациклился бы.
		delay = max(remaining/2, s.opts.MinDelay)
	}

	gen := s.gen
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })
	s.mu.Unlock()

	s.opts.Logger.Debug("refresh_scheduled", "in", delay)
}

// Expired — внешний сигнал «токен истёк» (например, запрос получил 401):
// снимает таймер и запускает refresh под тем же single-flight.
func (s *Scheduler) Expired() {
	s.mu.Lock()
	s.disarmLocked()
	s.mu.Unlock()

	s.trigger("expired")
}

// Refreshing сообщает, выполняется ли сейчас refresh.
func (s *Scheduler) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// Stop снимает таймер, отменяет выполняющийся refresh и ждёт его завершения.
// Последующие Schedule/Expired игнорируются.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.disarmLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.trigger("timer")
}

// trigger запускает refresh, если он ещё не идёт. Флаг проверяется и
// выставляется под мьютексом до любого блокирующего вызова.
func (s *Scheduler) trigger(reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.refreshing {
		s.mu.Unlock()
		s.opts.Logger.Debug("refresh_skipped_in_flight", "reason", reason)
		return
	}

	s.refreshing = true
	from := s.current
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(reason, from)
}

func (s *Scheduler) run(reason, from string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	tok, err := s.refresher.Refresh(ctx)
	cancel()

	s.mu.Lock()
	s.refreshing = false
	stopped := s.stopped
	s.mu.Unlock()

	log := s.opts.Logger.With("reason", reason)

	if err != nil {
		log.Warn("refresh_failed", "err", err)
		return
	}
	if stopped {
		return
	}
	if tok == "" || tok == from {
		// Тот же токен снова упал бы в немедленный refresh.
		log.Warn("refresh_returned_stale_token")
		return
	}

	log.Debug("refresh_succeeded")

	if s.opts.OnToken != nil {
		s.opts.OnToken(tok)
	}
	s.schedule(tok, true)
}

func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}
