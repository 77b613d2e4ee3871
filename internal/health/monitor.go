package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgegate/ridgegate/internal/config"
	"github.com/ridgegate/ridgegate/internal/metrics"
	"github.com/ridgegate/ridgegate/internal/types"
	"github.com/ridgegate/ridgegate/pkg/store"
)

const (
	recordKeyPrefix = "health/records/"
	latestKey       = "health/latest"
)

// Checker produces an aggregate health report. The dispatcher implements it.
type Checker interface {
	CheckHealth(ctx context.Context) (*types.HealthReport, error)
}

// AlertSink receives notifications about services that stayed down across
// consecutive sweeps.
type AlertSink interface {
	Alert(serviceID string, consecutive int, lastError string)
}

// LogSink is an AlertSink writing to the structured log.
type LogSink struct {
	Logger *zap.Logger
}

// Alert logs the down service at error level.
func (s *LogSink) Alert(serviceID string, consecutive int, lastError string) {
	s.Logger.Error("service persistently down",
		zap.String("service_id", serviceID),
		zap.Int("consecutive_failures", consecutive),
		zap.String("last_error", lastError))
}

// Monitor sweeps the gateway's health on a fixed interval, persists each
// snapshot and raises alerts for services that stay down. It observes and
// records; it never feeds routing or breaker decisions.
type Monitor struct {
	checker  Checker
	durable  store.Store
	metrics  *metrics.Metrics
	sink     AlertSink
	logger   *zap.Logger
	interval time.Duration
	// alertThreshold is the consecutive-down count that triggers an alert.
	alertThreshold int

	startedAt time.Time
	now       func() time.Time

	mu              sync.Mutex
	consecutiveDown map[string]int

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMonitor creates a health monitor. A nil sink falls back to log alerts.
func NewMonitor(cfg *config.HealthConfig, checker Checker, durable store.Store, m *metrics.Metrics, sink AlertSink, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = &LogSink{Logger: logger}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	threshold := cfg.AlertThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return &Monitor{
		checker:         checker,
		durable:         durable,
		metrics:         m,
		sink:            sink,
		logger:          logger,
		interval:        interval,
		alertThreshold:  threshold,
		now:             time.Now,
		consecutiveDown: make(map[string]int),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start begins the sweep loop. The first sweep runs immediately so a fresh
// gateway has a record before the first interval elapses.
func (m *Monitor) Start(ctx context.Context) {
	m.startedAt = m.now()
	go func() {
		defer close(m.done)
		m.Sweep(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	m.logger.Info("health monitor started",
		zap.Duration("interval", m.interval),
		zap.Int("alert_threshold", m.alertThreshold))
}

// Stop halts the sweep loop and waits for the in-flight sweep to finish.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}

// Sweep runs one health check, persists the snapshot and updates metrics.
// A failed check is logged and skipped; the loop carries on.
func (m *Monitor) Sweep(ctx context.Context) {
	start := m.now()
	report, err := m.checker.CheckHealth(ctx)
	if err != nil {
		m.logger.Error("health sweep failed", zap.Error(err))
		return
	}
	elapsed := m.now().Sub(start)

	record := m.buildRecord(report, elapsed)
	if err := m.persist(ctx, record); err != nil {
		m.logger.Error("health record not persisted", zap.Error(err))
	}
	m.updateMetrics(record, elapsed)
	m.raiseAlerts(report)

	m.logger.Debug("health sweep complete",
		zap.String("status", record.GatewayStatus),
		zap.Int("healthy", record.HealthyServices),
		zap.Int("total", record.TotalServices),
		zap.Int64("response_time_ms", record.ResponseTimeMS))
}

func (m *Monitor) buildRecord(report *types.HealthReport, elapsed time.Duration) *types.HealthRecord {
	record := &types.HealthRecord{
		GatewayStatus:  report.Status,
		Services:       make(map[string]types.ServiceHealth, len(report.Details)),
		ResponseTimeMS: elapsed.Milliseconds(),
		UptimeSeconds:  int64(m.now().Sub(m.startedAt).Seconds()),
		Timestamp:      m.now(),
	}
	for id, health := range report.Details {
		record.Services[id] = health
		record.TotalServices++
		if health.Status == types.ServiceStatusUp {
			record.HealthyServices++
		}
	}
	return record
}

// persist writes the snapshot under a timestamped key and refreshes the
// latest pointer.
func (m *Monitor) persist(ctx context.Context, record *types.HealthRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode health record: %w", err)
	}
	key := recordKeyPrefix + strconv.FormatInt(record.Timestamp.UnixMilli(), 10)
	if err := m.durable.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store health record: %w", err)
	}
	if err := m.durable.Put(ctx, latestKey, data); err != nil {
		return fmt.Errorf("store latest health record: %w", err)
	}
	return nil
}

func (m *Monitor) updateMetrics(record *types.HealthRecord, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.SetGatewayHealth(record.GatewayStatus == types.HealthStatusOK)
	m.metrics.SetHealthCheckDuration(float64(elapsed.Milliseconds()))
	for id, health := range record.Services {
		m.metrics.SetServiceHealth(id, health.Status == types.ServiceStatusUp)
	}
}

// raiseAlerts tracks consecutive down sweeps per service and notifies the
// sink once a service crosses the threshold. The alert repeats every sweep
// until the service recovers.
func (m *Monitor) raiseAlerts(report *types.HealthReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, health := range report.Details {
		if health.Status == types.ServiceStatusUp {
			delete(m.consecutiveDown, id)
			continue
		}
		m.consecutiveDown[id]++
		if m.consecutiveDown[id] >= m.alertThreshold {
			m.sink.Alert(id, m.consecutiveDown[id], health.Error)
		}
	}
}

// Latest returns the most recent persisted snapshot.
func (m *Monitor) Latest(ctx context.Context) (*types.HealthRecord, error) {
	data, err := m.durable.Get(ctx, latestKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("load latest health record: %w", err)
	}
	var record types.HealthRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode health record: %w", err)
	}
	return &record, nil
}

// History returns all persisted snapshots in unspecified order.
func (m *Monitor) History(ctx context.Context) ([]*types.HealthRecord, error) {
	entries, err := m.durable.List(ctx, recordKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list health records: %w", err)
	}
	records := make([]*types.HealthRecord, 0, len(entries))
	for key, data := range entries {
		var record types.HealthRecord
		if err := json.Unmarshal(data, &record); err != nil {
			m.logger.Warn("skipping undecodable health record", zap.String("key", key))
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}
