package sampler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/wegroup/pulse/internal/config"
	"github.com/wegroup/pulse/pkg/types"
)

const probeTimeout = 10 * time.Second

// Recorder is the slice of the ingestor the sampler records through.
type Recorder interface {
	RecordMetric(ctx context.Context, tenantID string, m *types.Metric)
	RecordSystemMetrics(ctx context.Context, tenantID string)
}

// Sampler collects runtime, scrape, and certificate samples on a fixed
// interval.
type Sampler struct {
	rec    Recorder
	cfg    config.SamplerConfig
	client *http.Client
}

// New creates a Sampler recording through rec. The HTTP client is built once
// and reused across scrape cycles.
func New(rec Recorder, cfg config.SamplerConfig) *Sampler {
	return &Sampler{
		rec:    rec,
		cfg:    cfg,
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Run samples immediately and then on every interval tick until ctx is
// cancelled. Returns right away when the sampler is disabled.
func (s *Sampler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		slog.Info("sampler: disabled")
		return
	}

	slog.Info("sampler: started",
		"interval", s.cfg.Interval,
		"targets", len(s.cfg.Targets),
		"cert_probes", len(s.cfg.CertProbes))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sampler: stopped")
			return
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

// sampleOnce runs one full collection pass.
func (s *Sampler) sampleOnce(ctx context.Context) {
	s.rec.RecordSystemMetrics(ctx, s.cfg.Tenant)

	for _, tg := range s.cfg.Targets {
		if err := s.scrapeTarget(ctx, tg); err != nil {
			slog.Warn("sampler: scrape failed", "target", tg.ID, "err", err)
		}
	}

	for _, u := range s.cfg.CertProbes {
		daysLeft, err := probeCert(ctx, u)
		if err != nil {
			slog.Warn("sampler: cert probe failed", "url", u, "err", err)
			continue
		}
		s.rec.RecordMetric(ctx, s.cfg.Tenant, &types.Metric{
			Name:      "tls_cert_days_left",
			Value:     daysLeft,
			Type:      types.MetricGauge,
			Unit:      "days",
			Component: "tls",
			Tags:      map[string]string{"endpoint": u},
		})
	}
}
