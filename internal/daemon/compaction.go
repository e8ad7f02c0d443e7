package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/retriever"
)

// CompactionManager triggers a background vector index rebuild once the
// search engine has been idle for a while and enough lazily-deleted orphan
// nodes have accumulated (§5.3). Unlike the scraper scheduler's jobs, there
// is exactly one engine per daemon process, so this tracks a single idle
// timer rather than a per-project registry.
type CompactionManager struct {
	config config.CompactionConfig
	engine *retriever.Engine

	mu          sync.Mutex
	idleTimer   *time.Timer
	compacting  bool
	lastCompact time.Time
	cancelFunc  context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stopOnce sync.Once
}

// NewCompactionManager creates a compaction manager for engine.
func NewCompactionManager(engine *retriever.Engine, cfg config.CompactionConfig) *CompactionManager {
	return &CompactionManager{config: cfg, engine: engine}
}

// Start initializes the manager. OnSearchComplete has no effect until Start
// has been called.
func (m *CompactionManager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	slog.Debug("compaction manager started",
		slog.Bool("enabled", m.config.Enabled),
		slog.Float64("orphan_threshold", m.config.OrphanThreshold),
		slog.Int("min_orphan_count", m.config.MinOrphanCount))
}

// Stop cancels any in-progress compaction and waits for it to finish.
func (m *CompactionManager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.mu.Lock()
		if m.idleTimer != nil {
			m.idleTimer.Stop()
		}
		if m.cancelFunc != nil {
			m.cancelFunc()
		}
		m.mu.Unlock()
		m.wg.Wait()
	})
}

// OnSearchComplete resets the idle timer. Call after every search so
// compaction only runs when the engine is actually quiet.
func (m *CompactionManager) OnSearchComplete() {
	if !m.config.Enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idleTimer != nil {
		m.idleTimer.Stop()
	}

	idleTimeout, err := time.ParseDuration(m.config.IdleTimeout)
	if err != nil {
		idleTimeout = 30 * time.Second
	}

	m.idleTimer = time.AfterFunc(idleTimeout, m.onIdle)
}

// InterruptCompaction cancels an in-progress compaction so an incoming
// search isn't slowed down by it.
func (m *CompactionManager) InterruptCompaction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.compacting && m.cancelFunc != nil {
		slog.Debug("interrupting compaction for search")
		m.cancelFunc()
	}
}

func (m *CompactionManager) onIdle() {
	if m.shouldCompact() {
		m.startCompaction()
	}
}

func (m *CompactionManager) shouldCompact() bool {
	if !m.config.Enabled {
		return false
	}

	select {
	case <-m.ctx.Done():
		return false
	default:
	}

	m.mu.Lock()
	if m.compacting {
		m.mu.Unlock()
		return false
	}

	cooldown, err := time.ParseDuration(m.config.Cooldown)
	if err != nil {
		cooldown = time.Hour
	}
	if time.Since(m.lastCompact) < cooldown {
		remaining := cooldown - time.Since(m.lastCompact)
		m.mu.Unlock()
		slog.Debug("compaction skipped: cooldown active", slog.Duration("remaining", remaining))
		return false
	}
	m.mu.Unlock()

	orphans := m.engine.VectorOrphans()
	if orphans < m.config.MinOrphanCount {
		slog.Debug("compaction skipped: below minimum orphan count",
			slog.Int("orphans", orphans), slog.Int("min_required", m.config.MinOrphanCount))
		return false
	}

	stats := m.engine.Stats()
	total := orphans + stats.VectorCount
	if total == 0 {
		return false
	}
	ratio := float64(orphans) / float64(total)
	if ratio < m.config.OrphanThreshold {
		slog.Debug("compaction skipped: below threshold",
			slog.Float64("ratio", ratio), slog.Float64("threshold", m.config.OrphanThreshold))
		return false
	}

	slog.Info("compaction eligible", slog.Int("orphans", orphans), slog.Float64("ratio", ratio))
	return true
}

func (m *CompactionManager) startCompaction() {
	m.mu.Lock()
	if m.compacting {
		m.mu.Unlock()
		return
	}
	m.compacting = true
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelFunc = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.compacting = false
			m.cancelFunc = nil
			m.mu.Unlock()
		}()
		m.runCompaction(ctx)
	}()
}

func (m *CompactionManager) runCompaction(ctx context.Context) {
	start := time.Now()
	slog.Info("background compaction starting")

	stats, err := m.engine.Compact(ctx)
	if err != nil {
		slog.Warn("background compaction failed", slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	m.lastCompact = time.Now()
	m.mu.Unlock()

	slog.Info("background compaction complete",
		slog.Int("orphans_removed", stats.OrphansBefore),
		slog.Int("vectors_rebuilt", stats.Rebuilt),
		slog.Duration("duration", time.Since(start)))
}
