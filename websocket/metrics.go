// Package websocket - websocket/metrics.go
// file: websocket/metrics.go

package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go-panel-relay/logger"
	"go-panel-relay/models"
)

// Recorder observes relay activity. Implementations must not block; they are
// called with the session lock held.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	SetupCompleted(health Health, attempts int)
	ControlApplied(word models.ControlWord)
	SnapshotEmitted()
	MessageDropped(reason string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ConnectionOpened() {}
func (NopRecorder) ConnectionClosed() {}
func (NopRecorder) SetupCompleted(Health, int) {}
func (NopRecorder) ControlApplied(models.ControlWord) {}
func (NopRecorder) SnapshotEmitted() {}
func (NopRecorder) MessageDropped(string) {}

// MultiRecorder fans out to every recorder.
type MultiRecorder []Recorder

func (m MultiRecorder) ConnectionOpened() {
	for _, r := range m {
		r.ConnectionOpened()
	}
}

func (m MultiRecorder) ConnectionClosed() {
	for _, r := range m {
		r.ConnectionClosed()
	}
}

func (m MultiRecorder) SetupCompleted(health Health, attempts int) {
	for _, r := range m {
		r.SetupCompleted(health, attempts)
	}
}

func (m MultiRecorder) ControlApplied(word models.ControlWord) {
	for _, r := range m {
		r.ControlApplied(word)
	}
}

func (m MultiRecorder) SnapshotEmitted() {
	for _, r := range m {
		r.SnapshotEmitted()
	}
}

func (m MultiRecorder) MessageDropped(reason string) {
	for _, r := range m {
		r.MessageDropped(reason)
	}
}

// PrometheusRecorder exports relay metrics on a registry.
type PrometheusRecorder struct {
	connections prometheus.Gauge
	setups      *prometheus.CounterVec
	attempts    prometheus.Histogram
	controls    prometheus.Counter
	lastWord    prometheus.Gauge
	snapshots   prometheus.Counter
	dropped     *prometheus.CounterVec
}

// NewPrometheusRecorder registers the relay collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	f := promauto.With(reg)
	return &PrometheusRecorder{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "panel_relay",
			Name:      "connections",
			Help:      "Open client sockets.",
		}),
		setups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panel_relay",
			Name:      "setups_total",
			Help:      "Controller setup sequences by outcome.",
		}, []string{"health"}),
		attempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "panel_relay",
			Name:      "setup_attempts",
			Help:      "Setup attempts per connect.",
			Buckets:   []float64{1, 2, 3, 5},
		}),
		controls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "panel_relay",
			Name:      "control_updates_total",
			Help:      "Control words sent to the panel.",
		}),
		lastWord: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "panel_relay",
			Name:      "control_word",
			Help:      "Last control word applied.",
		}),
		snapshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: "panel_relay",
			Name:      "snapshots_total",
			Help:      "Snapshots emitted to clients.",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panel_relay",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages not applied.",
		}, []string{"reason"}),
	}
}

func (p *PrometheusRecorder) ConnectionOpened() { p.connections.Inc() }
func (p *PrometheusRecorder) ConnectionClosed() { p.connections.Dec() }

func (p *PrometheusRecorder) SetupCompleted(health Health, attempts int) {
	p.setups.WithLabelValues(health.String()).Inc()
	p.attempts.Observe(float64(attempts))
}

func (p *PrometheusRecorder) ControlApplied(word models.ControlWord) {
	p.controls.Inc()
	p.lastWord.Set(float64(word))
}

func (p *PrometheusRecorder) SnapshotEmitted() { p.snapshots.Inc() }
func (p *PrometheusRecorder) MessageDropped(reason string) { p.dropped.WithLabelValues(reason).Inc() }

// MetricPutter is the slice of the CloudWatch API the recorder uses.
type MetricPutter interface {
	PutMetricData(input *cloudwatch.PutMetricDataInput) (*cloudwatch.PutMetricDataOutput, error)
}

// NewCloudWatchClient builds a client from the default AWS credential chain.
func NewCloudWatchClient() (MetricPutter, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, err
	}
	return cloudwatch.New(sess), nil
}

// CloudWatchRecorder aggregates counts in memory and pushes them from Run.
type CloudWatchRecorder struct {
	client    MetricPutter
	namespace string
	dimension string

	mu          sync.Mutex
	connections int
	counts      map[string]float64
}

// NewCloudWatchRecorder tags every datum with Panel=panelName.
func NewCloudWatchRecorder(client MetricPutter, namespace, panelName string) *CloudWatchRecorder {
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		dimension: panelName,
		counts:    make(map[string]float64),
	}
}

func (c *CloudWatchRecorder) add(name string, v float64) {
	c.mu.Lock()
	c.counts[name] += v
	c.mu.Unlock()
}

func (c *CloudWatchRecorder) ConnectionOpened() {
	c.mu.Lock()
	c.connections++
	c.mu.Unlock()
}

func (c *CloudWatchRecorder) ConnectionClosed() {
	c.mu.Lock()
	c.connections--
	c.mu.Unlock()
}

func (c *CloudWatchRecorder) SetupCompleted(health Health, attempts int) {
	if health == HealthDegraded {
		c.add("SetupDegraded", 1)
	}
	c.add("SetupAttempts", float64(attempts))
}

func (c *CloudWatchRecorder) ControlApplied(models.ControlWord) { c.add("ControlUpdates", 1) }
func (c *CloudWatchRecorder) SnapshotEmitted() { c.add("Snapshots", 1) }
func (c *CloudWatchRecorder) MessageDropped(string) { c.add("DroppedMessages", 1) }

// Run flushes every interval until ctx is done, then flushes once more.
func (c *CloudWatchRecorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Flush()
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

// Flush sends the accumulated counts and the connection gauge.
func (c *CloudWatchRecorder) Flush() {
	c.mu.Lock()
	counts := c.counts
	c.counts = make(map[string]float64)
	connections := c.connections
	c.mu.Unlock()

	now := aws.Time(time.Now())
	data := []*cloudwatch.MetricDatum{c.datum("Connections", float64(connections), cloudwatch.StandardUnitCount, now)}
	for name, v := range counts {
		data = append(data, c.datum(name, v, cloudwatch.StandardUnitCount, now))
	}

	_, err := c.client.PutMetricData(&cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	})
	if err != nil {
		logger.Error.Printf("[CloudWatchRecorder.Flush] CloudWatch metric failed (%d datums): %v", len(data), err)
	}
}

func (c *CloudWatchRecorder) datum(name string, value float64, unit string, ts *time.Time) *cloudwatch.MetricDatum {
	return &cloudwatch.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: []*cloudwatch.Dimension{
			{
				Name:  aws.String("Panel"),
				Value: aws.String(c.dimension),
			},
		},
		Timestamp: ts,
		Value:     aws.Float64(value),
		Unit:      aws.String(unit),
	}
}
