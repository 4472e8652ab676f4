package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HerbHall/pulsedeck/internal/driver"
	"github.com/HerbHall/pulsedeck/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrIntegrationNotFound is returned by on-demand operations for unknown ids.
var ErrIntegrationNotFound = errors.New("integration not found")

// IntegrationSource is the slice of Store the poller needs.
type IntegrationSource interface {
	ListActiveIntegrations(ctx context.Context) ([]models.Integration, error)
	GetIntegration(ctx context.Context, id int64) (*models.Integration, error)
	RecordPoll(ctx context.Context, id int64, status models.LastStatus, at time.Time) error
}

// CredentialOpener decrypts a stored credential blob.
type CredentialOpener interface {
	Open(blob string) (models.Credentials, error)
}

// Publisher receives one snapshot per polled integration.
type Publisher interface {
	Publish(ctx context.Context, snap models.MetricSnapshot)
}

// Status describes the poller for the admin API.
type Status struct {
	Running    bool       `json:"running"`
	Interval   string     `json:"interval" example:"30s"`
	Ticks      int64      `json:"ticks"`
	LastTickAt *time.Time `json:"last_tick_at,omitempty"`
}

// Poller periodically polls every active integration and publishes a
// snapshot per integration. Start and Stop are idempotent.
type Poller struct {
	source  IntegrationSource
	opener  CredentialOpener
	drivers driver.Factory
	bus     Publisher
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastTick time.Time

	ticks atomic.Int64
	locks keyedMutex
}

// NewPoller creates a stopped poller.
func NewPoller(source IntegrationSource, opener CredentialOpener, drivers driver.Factory, bus Publisher, cfg Config, logger *zap.Logger) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Poller{
		source:  source,
		opener:  opener,
		drivers: drivers,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the polling loop with an immediate first tick. Calling
// Start on a running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	pollerRunning.Set(1)
	p.logger.Info("poller started", zap.Duration("interval", p.cfg.PollInterval))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()

		p.tick(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and any in-flight polls without waiting for them,
// so it is safe to call from a bus subscriber. Use Wait to block until the
// loop has exited.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.cancel()
	p.running = false
	pollerRunning.Set(0)
	p.logger.Info("poller stopped")
}

// Wait blocks until every loop started so far has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Status returns a point-in-time view of the poller.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Running:  p.running,
		Interval: p.cfg.PollInterval.String(),
		Ticks:    p.ticks.Load(),
	}
	if !p.lastTick.IsZero() {
		t := p.lastTick
		st.LastTickAt = &t
	}
	return st
}

// tick polls every active integration concurrently. Cancelling ctx only
// prevents further ticks; polls already under way finish within the driver's
// own request timeout.
func (p *Poller) tick(ctx context.Context) {
	p.ticks.Add(1)
	p.mu.Lock()
	p.lastTick = p.now()
	p.mu.Unlock()

	integrations, err := p.source.ListActiveIntegrations(ctx)
	if err != nil {
		p.logger.Warn("failed to load active integrations", zap.Error(err))
		return
	}
	if len(integrations) == 0 {
		p.logger.Debug("no active integrations to poll")
		return
	}

	var g errgroup.Group
	if p.cfg.MaxWorkers > 0 {
		g.SetLimit(p.cfg.MaxWorkers)
	}
	for i := range integrations {
		in := &integrations[i]
		g.Go(func() error {
			_, _ = p.poll(ctx, in)
			return nil
		})
	}
	_ = g.Wait()
}

// PollIntegration polls one integration on demand, regardless of its active
// flag, and returns the published snapshot.
func (p *Poller) PollIntegration(ctx context.Context, id int64) (*models.MetricSnapshot, error) {
	in, err := p.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.poll(ctx, in)
}

// TestIntegration runs the driver's connection test and records the result
// as connected or failed.
func (p *Poller) TestIntegration(ctx context.Context, id int64) (driver.TestResult, error) {
	in, err := p.lookup(ctx, id)
	if err != nil {
		return driver.TestResult{}, err
	}

	var res driver.TestResult
	drv, err := p.open(in)
	if err != nil {
		res = driver.TestResult{Success: false, Message: err.Error()}
	} else {
		res = drv.TestConnection(ctx)
	}

	status := models.StatusConnected
	if !res.Success {
		status = models.StatusFailed
	}
	if err := p.source.RecordPoll(ctx, in.ID, status, p.now()); err != nil {
		p.logger.Warn("failed to record connection test", zap.Int64("integration_id", in.ID), zap.Error(err))
	}
	return res, nil
}

// Capabilities asks the integration's driver which metrics it can report.
func (p *Poller) Capabilities(ctx context.Context, id int64) ([]models.MetricCapability, error) {
	in, err := p.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	drv, err := p.open(in)
	if err != nil {
		return nil, err
	}
	return drv.Capabilities(ctx)
}

func (p *Poller) lookup(ctx context.Context, id int64) (*models.Integration, error) {
	in, err := p.source.GetIntegration(ctx, id)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, ErrIntegrationNotFound
	}
	return in, nil
}

// open decrypts credentials and builds the driver. The plaintext
// credentials go out of scope when the caller's poll returns.
func (p *Poller) open(in *models.Integration) (driver.Driver, error) {
	creds, err := p.opener.Open(in.Credentials)
	if err != nil {
		return nil, err
	}
	return p.drivers(in.ServiceType, creds)
}

// poll fetches every capability of one integration, records the outcome and
// publishes the snapshot. Polls of the same integration are serialized so
// its snapshots are published in timestamp order. Fetches are detached from
// ctx cancellation and bounded by the driver timeout alone.
func (p *Poller) poll(ctx context.Context, in *models.Integration) (*models.MetricSnapshot, error) {
	unlock := p.locks.lock(in.ID)
	defer unlock()
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	log := p.logger.With(
		zap.Int64("integration_id", in.ID),
		zap.String("integration", in.ServiceName),
		zap.String("service_type", string(in.ServiceType)),
	)

	finish := func(status models.LastStatus) {
		pollsTotal.WithLabelValues(string(in.ServiceType), string(status)).Inc()
		pollDuration.WithLabelValues(string(in.ServiceType)).Observe(time.Since(start).Seconds())
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.source.RecordPoll(rctx, in.ID, status, p.now()); err != nil {
			log.Warn("failed to record poll status", zap.Error(err))
		}
	}

	drv, err := p.open(in)
	if err != nil {
		log.Warn("failed to prepare driver", zap.Error(err))
		finish(models.StatusFailed)
		return nil, err
	}

	// An unreachable capability endpoint still yields an empty snapshot.
	caps, err := drv.Capabilities(ctx)
	if err != nil {
		log.Warn("failed to enumerate capabilities", zap.Error(err))
		caps = nil
	}

	data := make(map[models.MetricCapability]models.MetricData, len(caps))
	for _, c := range caps {
		md, err := drv.FetchMetric(ctx, c)
		if err != nil {
			metricFetchErrors.WithLabelValues(string(in.ServiceType), string(c)).Inc()
			log.Warn("failed to fetch metric", zap.String("capability", string(c)), zap.Error(err))
			continue
		}
		if md != nil {
			data[c] = *md
		}
	}

	status := deriveStatus(len(caps), len(data))
	if err != nil {
		status = models.StatusPartial
	}
	finish(status)

	snap := models.NewMetricSnapshot(in, p.now(), data)
	p.bus.Publish(ctx, snap)

	log.Debug("integration polled",
		zap.String("status", string(status)),
		zap.Int("capabilities", len(caps)),
		zap.Int("fetched", len(data)),
	)
	return &snap, nil
}

// deriveStatus maps fetch counts to a last status. An integration with no
// capabilities counts as success; failed is reserved for polls that never
// reached the driver.
func deriveStatus(requested, fetched int) models.LastStatus {
	if fetched == requested {
		return models.StatusSuccess
	}
	return models.StatusPartial
}

// keyedMutex hands out one mutex per integration id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (k *keyedMutex) lock(id int64) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
