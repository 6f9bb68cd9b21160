// Package events delivers pharmacy workflow events to downstream consumers
// (labeling, counseling, billing). Delivery is at-least-once: entry state is
// committed before publishing, failed deliveries are retried with backoff,
// and every attempt lands in an append-only delivery log.
package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	SignatureHeader = "X-Pharmacy-Signature"
	EventTypeHeader = "X-Pharmacy-Event"

	TypeDispenseCompleted = "dispense.completed"
)

// ItemFinalized describes one prescription item affected by a finalize.
type ItemFinalized struct {
	ItemID            uuid.UUID `json:"item_id"`
	DrugID            uuid.UUID `json:"drug_id"`
	QuantityDispensed float64   `json:"quantity_dispensed"`
	DispenseStatus    string    `json:"dispense_status"`
}

// DispenseCompleted is emitted once a dispensing entry reaches its terminal
// dispensed state. Consumers must be idempotent on EntryID.
type DispenseCompleted struct {
	EventID        uuid.UUID       `json:"event_id"`
	EntryID        uuid.UUID       `json:"entry_id"`
	PrescriptionID uuid.UUID       `json:"prescription_id"`
	DispenserID    uuid.UUID       `json:"dispenser_id"`
	ItemsFinalized []ItemFinalized `json:"items_finalized"`
	Timestamp      time.Time       `json:"timestamp"`
}

// DeliveryAttempt records a single delivery attempt for one consumer endpoint.
type DeliveryAttempt struct {
	ID         uuid.UUID     `json:"id"`
	EventID    uuid.UUID     `json:"event_id"`
	EventType  string        `json:"event_type"`
	URL        string        `json:"url"`
	Attempt    int           `json:"attempt"`
	StatusCode int           `json:"status_code"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// DeliveryLog is the append-only persistence interface for delivery attempts.
type DeliveryLog interface {
	Append(ctx context.Context, attempt *DeliveryAttempt) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*DeliveryAttempt, error)
}

// InMemoryDeliveryLog is a thread-safe, in-memory DeliveryLog.
type InMemoryDeliveryLog struct {
	mu       sync.RWMutex
	attempts []*DeliveryAttempt
}

func NewInMemoryDeliveryLog() *InMemoryDeliveryLog {
	return &InMemoryDeliveryLog{}
}

func (l *InMemoryDeliveryLog) Append(_ context.Context, attempt *DeliveryAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return nil
}

func (l *InMemoryDeliveryLog) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*DeliveryAttempt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var result []*DeliveryAttempt
	for _, a := range l.attempts {
		if a.EventID == eventID {
			result = append(result, a)
		}
	}
	return result, nil
}

// Dispatcher fans events out to the configured consumer endpoints.
type Dispatcher struct {
	consumers   []string
	secret      []byte
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
	log         DeliveryLog
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

func NewDispatcher(consumers []string, secret string, maxRetries int, log DeliveryLog, logger zerolog.Logger) *Dispatcher {
	if log == nil {
		log = NewInMemoryDeliveryLog()
	}
	return &Dispatcher{
		consumers:   consumers,
		secret:      []byte(secret),
		maxRetries:  maxRetries,
		baseBackoff: time.Second,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
		logger:      logger,
	}
}

// SetBaseBackoff overrides the initial retry backoff. Used by tests.
func (d *Dispatcher) SetBaseBackoff(dur time.Duration) {
	d.baseBackoff = dur
}

// Publish delivers the event to every consumer asynchronously. It never
// returns an error: delivery failure is logged and retried, not propagated
// back into the caller's state machine.
func (d *Dispatcher) Publish(ev DispenseCompleted) {
	if ev.EventID == uuid.Nil {
		ev.EventID = uuid.New()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Str("entry_id", ev.EntryID.String()).Msg("marshal dispense event")
		return
	}

	for _, url := range d.consumers {
		d.wg.Add(1)
		go func(url string) {
			defer d.wg.Done()
			d.deliverWithRetry(context.Background(), url, ev.EventID, payload)
		}(url)
	}
}

// Wait blocks until all in-flight deliveries (including retries) finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, url string, eventID uuid.UUID, payload []byte) {
	backoff := d.baseBackoff
	for attempt := 1; attempt <= d.maxRetries+1; attempt++ {
		att := d.deliverOnce(ctx, url, eventID, attempt, payload)
		if err := d.log.Append(ctx, att); err != nil {
			d.logger.Error().Err(err).Msg("append delivery attempt")
		}
		if att.Success {
			return
		}

		d.logger.Warn().
			Str("event_id", eventID.String()).
			Str("url", url).
			Int("attempt", attempt).
			Int("status", att.StatusCode).
			Str("error", att.Error).
			Msg("event delivery failed")

		if attempt <= d.maxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
		}
	}

	d.logger.Error().
		Str("event_id", eventID.String()).
		Str("url", url).
		Int("max_retries", d.maxRetries).
		Msg("event delivery exhausted retries")
}

func (d *Dispatcher) deliverOnce(ctx context.Context, url string, eventID uuid.UUID, attempt int, payload []byte) *DeliveryAttempt {
	att := &DeliveryAttempt{
		ID:        uuid.New(),
		EventID:   eventID,
		EventType: TypeDispenseCompleted,
		URL:       url,
		Attempt:   attempt,
		CreatedAt: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		att.Error = err.Error()
		return att
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventTypeHeader, TypeDispenseCompleted)
	if len(d.secret) > 0 {
		req.Header.Set(SignatureHeader, d.Sign(payload))
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	att.Duration = time.Since(start)
	if err != nil {
		att.Error = err.Error()
		return att
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	att.StatusCode = resp.StatusCode
	att.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !att.Success {
		att.Error = fmt.Sprintf("consumer returned %d", resp.StatusCode)
	}
	return att
}

// Sign returns the hex HMAC-SHA256 signature of the payload.
func (d *Dispatcher) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
