package guard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/gridshield/gatekeeper/pkg/metrics"
)

// AlertSeverity levels
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert kinds
const (
	AlertKindEscalation = "violation_escalation"
	AlertKindDDoS       = "ddos_detected"
)

// Alert is a fire-and-forget notification about a limiter event.
type Alert struct {
	ID         string        `json:"id"`
	Kind       string        `json:"kind"`
	Severity   AlertSeverity `json:"severity"`
	Identifier string        `json:"identifier"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Notifier delivers alerts to a sink.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (ln *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	ln.logger.Warn("admission alert",
		zap.String("kind", alert.Kind),
		zap.String("severity", string(alert.Severity)),
		zap.String("identifier", alert.Identifier),
		zap.String("message", alert.Message))
	return nil
}

// KafkaNotifier publishes alerts to a Kafka topic.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a Kafka-backed notifier.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (kn *KafkaNotifier) Notify(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return kn.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.Identifier),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (kn *KafkaNotifier) Close() error {
	return kn.writer.Close()
}

// Dispatcher fans alerts out to all notifiers from a bounded queue. Publish
// never blocks; alerts are dropped when the queue is full, because the
// request path must not wait on a notification sink.
type Dispatcher struct {
	notifiers []Notifier
	queue     chan Alert
	stop      chan struct{}
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewDispatcher creates and starts an alert dispatcher.
func NewDispatcher(logger *zap.Logger, queueSize int, notifiers ...Notifier) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		notifiers: notifiers,
		queue:     make(chan Alert, queueSize),
		stop:      make(chan struct{}),
		logger:    logger,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish enqueues an alert without blocking.
func (d *Dispatcher) Publish(alert Alert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	select {
	case d.queue <- alert:
	default:
		metrics.AlertsDropped.Inc()
		d.logger.Warn("alert queue full, dropping alert",
			zap.String("kind", alert.Kind),
			zap.String("identifier", alert.Identifier))
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case alert := <-d.queue:
			d.deliver(alert)
		case <-d.stop:
			// Drain what is already queued before exiting.
			for {
				select {
				case alert := <-d.queue:
					d.deliver(alert)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			d.logger.Warn("alert delivery failed",
				zap.String("kind", alert.Kind), zap.Error(err))
		}
	}
}

// Close stops the dispatcher after draining the queue.
func (d *Dispatcher) Close() {
	close(d.stop)
	d.wg.Wait()
}
