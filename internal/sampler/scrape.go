package sampler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/wegroup/pulse/internal/config"
	"github.com/wegroup/pulse/pkg/types"
)

// scrapeTarget fetches the target's exposition, picks out the configured
// families, and records one point per family.
func (s *Sampler) scrapeTarget(ctx context.Context, tg config.TargetConfig) error {
	mfs, err := s.fetchFamilies(ctx, tg.Endpoint)
	if err != nil {
		return err
	}

	tenant := tg.Tenant
	if tenant == "" {
		tenant = s.cfg.Tenant
	}

	for _, name := range tg.Families {
		mf, ok := mfs[name]
		if !ok {
			continue
		}
		s.rec.RecordMetric(ctx, tenant, &types.Metric{
			Name:      name,
			Value:     sumFamily(mf),
			Type:      familyType(mf),
			Component: tg.ID,
			Tags:      map[string]string{"endpoint": tg.Endpoint},
		})
	}
	return nil
}

// fetchFamilies GETs url and parses the Prometheus text exposition.
func (s *Sampler) fetchFamilies(ctx context.Context, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies decodes a text exposition. A partial result with trailing
// format warnings still parses; only an empty result is an error.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, and untyped values in a family.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

// familyType maps the exposition type onto the internal metric type.
func familyType(mf *dto.MetricFamily) types.MetricType {
	if mf.GetType() == dto.MetricType_COUNTER {
		return types.MetricCounter
	}
	return types.MetricGauge
}
