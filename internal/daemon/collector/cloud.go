package collector

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/snapshot"
	"github.com/grovetools/pgpulse/version"
)

// CloudOptions are decoded from a cloud source's params.
type CloudOptions struct {
	// URL of a Prometheus text-format endpoint, typically a cloud-provider
	// metrics exporter for the managed database instance.
	URL     string            `mapstructure:"url"`
	// Metrics restricts collection to these family names. Empty keeps all.
	Metrics []string          `mapstructure:"metrics"`
	Headers map[string]string `mapstructure:"headers"`
}

// CloudCollector scrapes provider metrics exposed in Prometheus text format.
type CloudCollector struct {
	id     snapshot.SourceID
	opts   CloudOptions
	allow  map[string]bool
	client *http.Client
	health *healthTracker
	now    func() time.Time
}

// NewCloudCollector builds a cloud collector from its source config.
func NewCloudCollector(src config.SourceConfig) (*CloudCollector, error) {
	var opts CloudOptions
	if err := src.DecodeParams(&opts); err != nil {
		return nil, err
	}
	if opts.URL == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "cloud source requires params.url")
	}
	id := snapshot.SourceID(src.ID)
	if id == "" {
		id = snapshot.SourceCloud
	}
	allow := make(map[string]bool, len(opts.Metrics))
	for _, m := range opts.Metrics {
		allow[m] = true
	}
	return &CloudCollector{
		id:     id,
		opts:   opts,
		allow:  allow,
		client: &http.Client{},
		health: newHealthTracker(id),
		now:    time.Now,
	}, nil
}

func (c *CloudCollector) Identify() snapshot.SourceID { return c.id }

func (c *CloudCollector) Health() Health { return c.health.get() }

// Fetch scrapes the endpoint once.
func (c *CloudCollector) Fetch(ctx context.Context) (snapshot.SourceReading, error) {
	reading, err := c.scrape(ctx)
	if err != nil {
		c.health.failure(err)
		return snapshot.SourceReading{}, err
	}
	c.health.success(reading.FetchedAt)
	return reading, nil
}

func (c *CloudCollector) scrape(ctx context.Context) (snapshot.SourceReading, error) {
	source := string(c.id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return snapshot.SourceReading{}, errors.FetchTerminal(source, err)
	}
	req.Header.Set("Accept", "text/plain;version=0.0.4")
	req.Header.Set("User-Agent", version.ApplicationName())
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return snapshot.SourceReading{}, errors.FetchTransient(source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		return snapshot.SourceReading{}, errors.FetchTerminal(source, fmt.Errorf("unexpected status %s", resp.Status)).
			WithDetail("status", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return snapshot.SourceReading{}, errors.FetchTransient(source, fmt.Errorf("unexpected status %s", resp.Status)).
			WithDetail("status", resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return snapshot.SourceReading{}, errors.FetchTransient(source, fmt.Errorf("parse metrics: %w", err))
	}

	reading := newReading(c.now())
	for name, family := range families {
		if len(c.allow) > 0 && !c.allow[name] {
			continue
		}
		for _, m := range family.GetMetric() {
			addMetric(reading.Fields, name+labelSuffix(m.GetLabel()), family.GetType(), m)
		}
	}
	return reading, nil
}

// addMetric converts one sample into fields. Summaries and histograms are
// reduced to their _sum and _count.
func addMetric(fields map[string]snapshot.Value, name string, typ dto.MetricType, m *dto.Metric) {
	switch typ {
	case dto.MetricType_COUNTER:
		v := m.GetCounter().GetValue()
		if v == math.Trunc(v) && math.Abs(v) < math.MaxInt64 {
			fields[name] = snapshot.Counter(int64(v))
		} else {
			fields[name] = snapshot.Gauge(v)
		}
	case dto.MetricType_GAUGE:
		fields[name] = snapshot.Gauge(m.GetGauge().GetValue())
	case dto.MetricType_SUMMARY:
		fields[name+"_sum"] = snapshot.Gauge(m.GetSummary().GetSampleSum())
		fields[name+"_count"] = snapshot.Counter(int64(m.GetSummary().GetSampleCount()))
	case dto.MetricType_HISTOGRAM:
		fields[name+"_sum"] = snapshot.Gauge(m.GetHistogram().GetSampleSum())
		fields[name+"_count"] = snapshot.Counter(int64(m.GetHistogram().GetSampleCount()))
	default:
		fields[name] = snapshot.Gauge(m.GetUntyped().GetValue())
	}
}

// labelSuffix renders labels as {a="1",b="2"} in name order.
func labelSuffix(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(labels))
	for _, l := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}
