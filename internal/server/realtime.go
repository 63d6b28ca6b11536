package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/host"
)

const (
	RealtimeEventCampaignChanged = "campaign-change"
	RealtimeEventCampaignExpired = "campaign-expired"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceBackend        = "pledge-backend"
)

type RealtimeMessage struct {
	Campaign  string    `json:"campaign"`
	EventType string    `json:"event"`
	Operation string    `json:"operation,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Height    uint64    `json:"height"`
	Timestamp time.Time `json:"timestamp"`
}

// RealtimeDispatcher fans committed campaign changes out to stream subscribers of that
// campaign. Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, campaign string) (<-chan RealtimeMessage, func()) {
	if campaign == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(campaign, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(campaign, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Campaign == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.Campaign]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// CampaignChanged publishes a committed call.
func (d *RealtimeDispatcher) CampaignChanged(event host.Event) {
	d.Publish(RealtimeMessage{
		Campaign:  event.Campaign,
		EventType: RealtimeEventCampaignChanged,
		Operation: event.Operation,
		Status:    string(event.Status),
		Message:   event.Message,
		Height:    event.Height,
		Timestamp: event.Timestamp.UTC(),
	})
}

// CampaignExpired publishes an expiry applied by the sweeper.
func (d *RealtimeDispatcher) CampaignExpired(campaign string, height uint64) {
	d.Publish(RealtimeMessage{
		Campaign:  campaign,
		EventType: RealtimeEventCampaignExpired,
		Height:    height,
		Timestamp: d.clock().UTC(),
	})
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(campaign string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[campaign]; !ok {
		d.subscribers[campaign] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[campaign][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(campaign string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[campaign]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, campaign)
		}
	}
	d.mu.Unlock()
}
