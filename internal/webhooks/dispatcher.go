package webhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Dispatcher delivers alerts to registered subscribers asynchronously,
// off a bounded queue serviced by a small worker pool. Never blocks the
// caller (EmitAlert is fire-and-forget) so it never gates the alert sink's
// own durability guarantee.
type Dispatcher struct {
	registry   *Registry
	httpClient *http.Client
	queue      chan *deliveryJob
	logger     *log.Logger
	wg         sync.WaitGroup
	workers    int
}

type deliveryJob struct {
	subscriber *Subscription
	event      *DeliveryEvent
	attempt    int
}

// NewDispatcher creates a dispatcher with a background worker pool.
func NewDispatcher(registry *Registry, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		registry:   registry,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan *deliveryJob, 1000),
		logger:     log.New(log.Writer(), "[webhooks.dispatch] ", log.LstdFlags),
		workers:    workers,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// EmitAlert fans data out to every active subscriber. Best-effort: if
// the queue is full the delivery is dropped and logged, never blocking
// the alert pipeline.
func (d *Dispatcher) EmitAlert(data map[string]interface{}) {
	subscribers := d.registry.Subscribers()
	if len(subscribers) == 0 {
		return
	}

	event := &DeliveryEvent{
		ID:        fmt.Sprintf("evt-%d", time.Now().UnixNano()),
		Source:    "ares-gateway",
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, sub := range subscribers {
		select {
		case d.queue <- &deliveryJob{subscriber: sub, event: event, attempt: 1}:
		default:
			d.logger.Printf("queue full, dropping alert delivery %s for %s", event.ID, sub.ID)
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job *deliveryJob) {
	payload, err := json.Marshal(job.event)
	if err != nil {
		d.logger.Printf("failed to marshal alert delivery: %v", err)
		return
	}

	req, err := http.NewRequest("POST", job.subscriber.URL, bytes.NewReader(payload))
	if err != nil {
		d.logger.Printf("failed to build webhook request: %v", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ARES-DELIVERY-ID", job.event.ID)
	req.Header.Set("X-ARES-DELIVERY-ATTEMPT", fmt.Sprintf("%d", job.attempt))
	if job.subscriber.Secret != "" {
		req.Header.Set("X-ARES-SIGNATURE", "sha256="+SignPayload(payload, job.subscriber.Secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Printf("webhook delivery failed: %s: %v", job.subscriber.URL, err)
		d.registry.MarkFailed(job.subscriber.ID)

		if job.attempt < 3 {
			time.Sleep(time.Duration(job.attempt*job.attempt) * time.Second)
			job.attempt++
			select {
			case d.queue <- job:
			default:
			}
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.logger.Printf("webhook returned %d: %s", resp.StatusCode, job.subscriber.URL)
		d.registry.MarkFailed(job.subscriber.ID)
	}
}

// Shutdown drains the queue and waits for in-flight deliveries.
func (d *Dispatcher) Shutdown() {
	close(d.queue)
	d.wg.Wait()
}
