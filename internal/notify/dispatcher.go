package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"dutyline/internal/config"
	"dutyline/internal/domain"
	"dutyline/internal/engine"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
)

// Dispatcher forwards duty events to configured webhooks. Each hook keeps its
// own cursor into the event sequence; a failed delivery holds the cursor so
// the event is retried next tick.
type Dispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client
	mu       sync.Mutex
	cursors  map[int]int64
}

// Start launches the dispatcher goroutine. Returns nil when no webhooks are
// configured.
func Start(e engine.Engine) *Dispatcher {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return nil
	}
	d := &Dispatcher{
		engine:   e,
		webhooks: e.Config.Webhooks,
		client:   &http.Client{Timeout: defaultTimeout},
		cursors:  make(map[int]int64),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	ticker := time.NewTicker(defaultInterval)
	defer ticker.Stop()
	for {
		d.DispatchAll()
		<-ticker.C
	}
}

// DispatchAll runs one delivery pass over every enabled hook.
func (d *Dispatcher) DispatchAll() {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchHook(i, hook)
	}
}

func (d *Dispatcher) dispatchHook(idx int, hook config.WebhookConfig) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	seqs, events, err := d.engine.Repo.EventsAfter(ctx, defaultBatch, cursor)
	if err != nil {
		log.Printf("notify: fetch events failed: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newClientFilter(hook.Clients)
	for i, evt := range events {
		seq := seqs[i]
		if !filter.match(evt.ClientID) {
			d.setCursor(idx, seq)
			continue
		}
		if err := d.postEvent(ctx, hook, seq, evt); err != nil {
			log.Printf("notify: deliver to %s failed: %v", hook.URL, err)
			d.record(ctx, seq, hook.URL, "failed")
			return
		}
		d.record(ctx, seq, hook.URL, "delivered")
		d.setCursor(idx, seq)
	}
}

func (d *Dispatcher) record(ctx context.Context, seq int64, url, status string) {
	err := d.engine.Repo.InsertNotification(ctx, domain.Notification{
		EventSeq:  seq,
		HookURL:   url,
		Status:    status,
		CreatedAt: domain.Timestamp(time.Now()),
	})
	if err != nil {
		log.Printf("notify: record delivery failed: %v", err)
	}
}

func (d *Dispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestEventSeq(context.Background())
	if err != nil {
		log.Printf("notify: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type hookEvent struct {
	Seq            int64  `json:"seq"`
	ID             string `json:"id"`
	DutyID         string `json:"dutyId"`
	ClientID       string `json:"clientId"`
	Status         string `json:"status"`
	Notes          string `json:"notes,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func (d *Dispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, seq int64, evt domain.DutyEvent) error {
	body := hookEvent{
		Seq:            seq,
		ID:             evt.ID,
		DutyID:         evt.DutyID,
		ClientID:       evt.ClientID,
		Status:         evt.Status,
		Notes:          evt.Notes,
		AttachmentName: evt.AttachmentName,
		CreatedAt:      evt.CreatedAt,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dutyline-Event", evt.Status)
	req.Header.Set("X-Dutyline-Delivery", fmt.Sprintf("%d", seq))
	req.Header.Set("X-Dutyline-Client", evt.ClientID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Dutyline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type clientFilter struct {
	all bool
	set map[string]struct{}
}

func newClientFilter(clients []string) clientFilter {
	if len(clients) == 0 {
		return clientFilter{all: true}
	}
	set := make(map[string]struct{}, len(clients))
	for _, c := range clients {
		key := strings.TrimSpace(c)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return clientFilter{all: true}
	}
	return clientFilter{set: set}
}

func (f clientFilter) match(clientID string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[clientID]
	return ok
}
