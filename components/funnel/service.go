package funnel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures the funnel Service. Collaborators are interfaces so applications can
// swap the analytics backend, clock or telemetry sink.
type Options struct {
	Client            QueryClient
	People            PeopleClient
	Clock             Clock
	Telemetry         Telemetry
	Hooks             []StateHook
	Logger            *zerolog.Logger
	Cache             *ResultCache
	CacheSize         int
	IntervalCorrector IntervalCorrector
	PollInterval      time.Duration
	Timeout           time.Duration
}

// Service runs funnel queries per named slot. A newer run in a slot supersedes any run
// still in flight there; stale completions are discarded.
type Service struct {
	opts       Options
	normalizer *Normalizer
	poller     *Poller
	cache      *ResultCache
	logger     zerolog.Logger

	mu    sync.Mutex
	slots map[string]*slot
	seq   uint64

	// pubMu serializes hook delivery; published holds the last sequence delivered per slot.
	pubMu     sync.Mutex
	published map[string]uint64
}

type slot struct {
	generation uint64
	cancel     context.CancelFunc
	key        string
	result     QueryResult
}

// NewService builds a Service with safe defaults. A QueryClient is required; pass
// DemoQueryClient explicitly to serve built-in demo data.
func NewService(opts Options) (*Service, error) {
	if opts.Client == nil {
		return nil, errMissingClient
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	cache := opts.Cache
	if cache == nil {
		var err error
		cache, err = NewResultCache(opts.CacheSize)
		if err != nil {
			return nil, err
		}
	}
	return &Service{
		opts:       opts,
		normalizer: NewNormalizer(opts.IntervalCorrector),
		poller: NewPoller(PollerOptions{
			Client:    opts.Client,
			Clock:     opts.Clock,
			Interval:  opts.PollInterval,
			Timeout:   opts.Timeout,
			Telemetry: opts.Telemetry,
			Logger:    &logger,
		}),
		cache:     cache,
		logger:    logger,
		slots:     make(map[string]*slot),
		published: make(map[string]uint64),
	}, nil
}

// Normalize exposes the configured normalizer.
func (s *Service) Normalize(raw FilterSpec) (FilterSpec, error) {
	return s.normalizer.Normalize(raw)
}

// Run normalizes raw and resolves it in slotName. Failures are recorded on the slot as a
// failed result and also returned.
func (s *Service) Run(ctx context.Context, slotName string, raw FilterSpec, forceRefresh bool) (QueryResult, error) {
	if slotName == "" {
		return QueryResult{}, errMissingSlot
	}

	spec, err := s.normalizer.Normalize(raw)
	if err != nil {
		gen, _ := s.begin(ctx, slotName, "")
		return s.finish(ctx, slotName, gen, "", QueryResult{}, err)
	}
	key := CacheKey(spec)

	if spec.Incomplete() {
		gen, _ := s.begin(ctx, slotName, key)
		return s.finish(ctx, slotName, gen, key, QueryResult{Status: StatusReady, Steps: []FunnelStep{}}, nil)
	}

	if !forceRefresh {
		if cached, ok := s.cache.Get(key); ok && cached.Status == StatusReady {
			gen, _ := s.begin(ctx, slotName, key)
			s.logger.Debug().Str("slot", slotName).Str("key", key).Msg("funnel cache hit")
			return s.finish(ctx, slotName, gen, key, cached, nil)
		}
	}

	gen, runCtx := s.begin(ctx, slotName, key)
	s.logger.Debug().Str("slot", slotName).Str("key", key).Bool("refresh", forceRefresh).Msg("funnel query started")
	result, err := s.poller.Run(runCtx, spec, forceRefresh)
	return s.finish(ctx, slotName, gen, key, result, err)
}

// begin supersedes whatever runs in the slot and returns the new generation.
func (s *Service) begin(ctx context.Context, slotName, key string) (uint64, context.Context) {
	gen, runCtx, state, seq := s.beginLocked(ctx, slotName, key)
	s.publish(ctx, state, seq)
	return gen, runCtx
}

func (s *Service) beginLocked(ctx context.Context, slotName, key string) (uint64, context.Context, State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[slotName]
	if !ok {
		sl = &slot{}
		s.slots[slotName] = sl
	}
	if sl.cancel != nil {
		sl.cancel()
		sl.cancel = nil
	}
	if key != "" && sl.key != "" && sl.key != key && !s.keyShared(sl.key, slotName) {
		s.cache.Invalidate(sl.key)
	}
	sl.generation++
	runCtx, cancel := context.WithCancel(ctx)
	sl.cancel = cancel
	sl.key = key
	sl.result = QueryResult{
		QueryID: uuid.NewString(),
		Key:     key,
		Status:  StatusPending,
	}
	s.seq++
	return sl.generation, runCtx, State{Slot: slotName, Key: key, Result: cloneResult(sl.result)}, s.seq
}

// keyShared reports whether a slot other than slotName currently holds key. Callers hold mu.
func (s *Service) keyShared(key, slotName string) bool {
	for name, other := range s.slots {
		if name != slotName && other.key == key {
			return true
		}
	}
	return false
}

// finish commits the outcome if gen is still the slot's current generation.
func (s *Service) finish(ctx context.Context, slotName string, gen uint64, key string, result QueryResult, runErr error) (QueryResult, error) {
	final, seq, err := s.finishLocked(slotName, gen, key, result, runErr)
	if !errors.Is(err, ErrSuperseded) {
		s.publish(ctx, State{Slot: slotName, Key: key, Result: cloneResult(final)}, seq)
	}
	return final, err
}

func (s *Service) finishLocked(slotName string, gen uint64, key string, result QueryResult, runErr error) (QueryResult, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[slotName]
	if !ok || sl.generation != gen {
		s.logger.Debug().Str("slot", slotName).Uint64("generation", gen).Msg("discarding stale funnel result")
		return QueryResult{}, 0, ErrSuperseded
	}
	if sl.cancel != nil {
		sl.cancel()
		sl.cancel = nil
	}

	final := cloneResult(result)
	final.QueryID = sl.result.QueryID
	final.Key = key
	if runErr != nil {
		final = QueryResult{
			QueryID: sl.result.QueryID,
			Key:     key,
			Status:  StatusFailed,
			Error:   runErr.Error(),
		}
		s.logger.Warn().Err(runErr).Str("slot", slotName).Msg("funnel query failed")
	} else {
		final.Status = StatusReady
	}
	if key != "" {
		s.cache.Put(key, final)
	}
	sl.result = final
	s.seq++
	return cloneResult(final), s.seq, runErr
}

// State returns the observable state of slotName.
func (s *Service) State(slotName string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[slotName]
	if !ok {
		return State{Slot: slotName, Result: QueryResult{Status: StatusPending}}
	}
	return State{Slot: slotName, Key: sl.key, Result: cloneResult(sl.result)}
}

// Clear cancels any run in slotName, drops its cached result and destroys the slot.
func (s *Service) Clear(slotName string) State {
	state, seq, existed := s.clearLocked(slotName)
	if existed {
		s.publish(context.Background(), state, seq)
	}
	return state
}

func (s *Service) clearLocked(slotName string) (State, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[slotName]
	if !ok {
		return State{Slot: slotName, Result: QueryResult{Status: StatusPending}}, 0, false
	}
	if sl.cancel != nil {
		sl.cancel()
	}
	delete(s.slots, slotName)
	var state State
	if sl.key != "" && s.keyShared(sl.key, slotName) {
		state = State{Key: sl.key, Result: QueryResult{Key: sl.key, Status: StatusPending}}
	} else {
		state = s.cache.Clear(sl.key)
	}
	state.Slot = slotName
	s.seq++
	return state, s.seq, true
}

// publish delivers state to the hooks unless a later transition of the same slot was
// already delivered, so subscribers always settle on the slot's current state.
func (s *Service) publish(ctx context.Context, state State, seq uint64) {
	if len(s.opts.Hooks) == 0 {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if seq <= s.published[state.Slot] {
		return
	}
	s.published[state.Slot] = seq
	for _, hook := range s.opts.Hooks {
		if hook != nil {
			hook.SlotChanged(ctx, state)
		}
	}
}

// Slots lists the active slot names.
func (s *Service) Slots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	return names
}

// People hydrates person records for ids through the configured PeopleClient.
func (s *Service) People(ctx context.Context, ids []string) ([]Person, error) {
	if s.opts.People == nil {
		return nil, errMissingClient
	}
	if len(ids) == 0 {
		return []Person{}, nil
	}
	return s.opts.People.FetchPeople(ctx, ids)
}

// IsSuperseded reports whether err signals a run discarded in favor of a newer one.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
