package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/pulseguard/pulseguard/internal/config"
)

// probe performs one liveness attempt. A nil error means the endpoint is
// healthy; the error explains the failure otherwise.
type probe func(ctx context.Context) error

// buildProbe returns the probe function for the check's type. Types are
// validated at config load time.
func buildProbe(ck config.Check, client *http.Client) (probe, error) {
	switch ck.Type {
	case "http":
		return func(ctx context.Context) error {
			return probeHTTP(ctx, client, ck.URL)
		}, nil
	case "tcp":
		addr := strings.TrimPrefix(ck.URL, "tcp://")
		return func(ctx context.Context) error {
			return probeTCP(ctx, addr)
		}, nil
	case "metrics":
		return func(ctx context.Context) error {
			return probeMetrics(ctx, client, ck)
		}, nil
	default:
		return nil, fmt.Errorf("check %q: unsupported type %q", ck.Name, ck.Type)
	}
}

// probeHTTP treats any 2xx response as healthy.
func probeHTTP(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// probeTCP treats a successful connect as healthy.
func probeTCP(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tcp: %w", err)
	}
	conn.Close()
	return nil
}

// probeMetrics fetches a Prometheus exposition and, when a condition is
// configured, requires the summed metric to satisfy it. Without a condition
// a parseable scrape is healthy.
func probeMetrics(ctx context.Context, client *http.Client, ck config.Check) error {
	mfs, err := fetchMetrics(ctx, client, ck.URL)
	if err != nil {
		return err
	}
	if ck.Metric == "" {
		return nil
	}

	mf, ok := mfs[ck.Metric]
	if !ok {
		return fmt.Errorf("metric %q not present in scrape", ck.Metric)
	}
	v := sumFamily(mf)
	if !compareFloat(v, ck.Op, ck.Value) {
		return fmt.Errorf("metric %s = %g, want %s %g", ck.Metric, v, ck.Op, ck.Value)
	}
	return nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition into metric families.
// A partial result with a non-fatal parse warning is still returned.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
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

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
