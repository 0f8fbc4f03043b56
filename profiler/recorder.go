package profiler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/MichaelACosta/Wyatt-STM/stm"
)

// Recorder implements stm.Hooks, turning the core engine's bare lifecycle
// callbacks into Prometheus metrics, a bounded conflict history, and
// structured logs. The core package never imports this one — Recorder is
// wired in by application code via stm.WithHooks(recorder).
type Recorder struct {
	metrics *Metrics
	history *ConflictHistory
	logger  *slog.Logger

	namesMu     sync.RWMutex
	threadNames map[int64]string
	txNames     map[uint64]string
	cellNames   map[stm.CellID]string

	// active tracks the start time of every transaction attempt currently
	// in flight, the same role the teacher's MVCCMap.activeTxs/txMeta
	// bookkeeping played for its GC and deadlock detector, repurposed here
	// to drive the ActiveTransactions gauge instead.
	activeMu sync.Mutex
	active   map[uint64]time.Time

	historyCapacity int
	flushLimiter    *rate.Limiter
	flushCancel     context.CancelFunc
	flushDone       chan struct{}
}

type config struct {
	registerer      prometheus.Registerer
	logger          *slog.Logger
	historyCapacity int
	flushInterval   time.Duration
}

func defaultConfig() config {
	return config{
		registerer:      prometheus.NewRegistry(),
		logger:          slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		historyCapacity: 256,
		flushInterval:   5 * time.Second,
	}
}

// Option configures a Recorder at construction time.
type Option func(*config)

// WithRegisterer sets the Prometheus registerer metrics are registered
// against. Defaults to a fresh prometheus.NewRegistry() rather than the
// global DefaultRegisterer, so multiple Recorders never collide.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithLogger sets the logger used for periodic conflict-history flushes.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithHistoryCapacity bounds how many ConflictEvents are retained at once.
func WithHistoryCapacity(n int) Option {
	return func(c *config) { c.historyCapacity = n }
}

// WithFlushInterval sets how often the Recorder logs a conflict-history
// summary.
func WithFlushInterval(d time.Duration) Option {
	return func(c *config) { c.flushInterval = d }
}

// NewRecorder creates a Recorder and starts its background flush loop,
// stopped by cancelling ctx or by calling Close.
func NewRecorder(ctx context.Context, opts ...Option) (*Recorder, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	history, err := NewConflictHistory(cfg.historyCapacity)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		metrics:         NewMetrics(cfg.registerer),
		history:         history,
		logger:          cfg.logger,
		threadNames:     make(map[int64]string),
		txNames:         make(map[uint64]string),
		cellNames:       make(map[stm.CellID]string),
		active:          make(map[uint64]time.Time),
		historyCapacity: cfg.historyCapacity,
		flushLimiter:    newFlushLimiter(cfg.flushInterval),
		flushDone:       make(chan struct{}),
	}

	flushCtx, cancel := context.WithCancel(ctx)
	r.flushCancel = cancel
	go r.runFlush(flushCtx, cfg.flushInterval)

	return r, nil
}

// Close stops the background flush loop and waits for it to exit.
func (r *Recorder) Close() {
	r.flushCancel()
	<-r.flushDone
}

// OnTransactionStart implements stm.Hooks.
func (r *Recorder) OnTransactionStart(txID uint64) {
	r.metrics.TransactionsStarted.Inc()

	r.activeMu.Lock()
	r.active[txID] = time.Now()
	r.metrics.ActiveTransactions.Set(float64(len(r.active)))
	r.activeMu.Unlock()
}

// OnCommit implements stm.Hooks.
func (r *Recorder) OnCommit(txID uint64, attempts int, dur time.Duration) {
	r.metrics.TransactionsCommitted.Inc()
	r.metrics.CommitDuration.Observe(dur.Seconds())

	r.activeMu.Lock()
	delete(r.active, txID)
	r.metrics.ActiveTransactions.Set(float64(len(r.active)))
	r.activeMu.Unlock()

	r.logger.Debug("transaction committed", "tx", r.txLabel(txID), "attempts", attempts, "duration", dur)
}

// OnConflict implements stm.Hooks.
func (r *Recorder) OnConflict(txID uint64, cellID stm.CellID) {
	r.metrics.Conflicts.Inc()

	r.activeMu.Lock()
	delete(r.active, txID)
	r.metrics.ActiveTransactions.Set(float64(len(r.active)))
	r.activeMu.Unlock()

	r.namesMu.RLock()
	txName := r.txNames[txID]
	cellName := r.cellNames[cellID]
	r.namesMu.RUnlock()

	ev := r.history.Record(ConflictEvent{
		TxID:     txID,
		TxName:   txName,
		CellID:   cellID,
		CellName: cellName,
		At:       time.Now(),
	})
	r.logger.Debug("conflict", "event", ev.ID, "tx", r.txLabel(txID), "cell", r.cellLabel(cellID))
}

// OnThreadNamed implements stm.Hooks.
func (r *Recorder) OnThreadNamed(goroutineID int64, name string) {
	r.namesMu.Lock()
	r.threadNames[goroutineID] = name
	r.namesMu.Unlock()
}

// OnTransactionNamed implements stm.Hooks.
func (r *Recorder) OnTransactionNamed(txID uint64, name string) {
	r.namesMu.Lock()
	r.txNames[txID] = name
	r.namesMu.Unlock()
}

// OnCellNamed implements stm.Hooks.
func (r *Recorder) OnCellNamed(cellID stm.CellID, name string) {
	r.namesMu.Lock()
	r.cellNames[cellID] = name
	r.namesMu.Unlock()
}

// Recent returns the most recently recorded conflict events.
func (r *Recorder) Recent() []ConflictEvent {
	return r.history.Recent()
}

func (r *Recorder) txLabel(txID uint64) string {
	r.namesMu.RLock()
	defer r.namesMu.RUnlock()
	if name, ok := r.txNames[txID]; ok {
		return name
	}
	return ""
}

func (r *Recorder) cellLabel(cellID stm.CellID) string {
	r.namesMu.RLock()
	defer r.namesMu.RUnlock()
	if name, ok := r.cellNames[cellID]; ok {
		return name
	}
	return ""
}
