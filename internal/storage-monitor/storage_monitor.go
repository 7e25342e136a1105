package storagemonitor

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/ringflow/ringflow/internal/notification"
)

// DefaultUsageThreshold is the used-percent above which backups are refused.
const DefaultUsageThreshold = 80.0

// CapacityEvent represents the data sent when the backup volume crosses the
// usage threshold.
type CapacityEvent struct {
	Path        string  `json:"path"`
	UsedPercent float64 `json:"used_percent"`
	Message     string  `json:"message"`
}

// EventBroker handles the subscription and broadcasting of capacity events.
type EventBroker struct {
	subscribers []chan CapacityEvent
	mu          sync.Mutex
}

var broker *EventBroker

func init() {
	broker = NewEventBroker()
	startLoggerSubscriber(broker)
}

// NewEventBroker initializes a new EventBroker.
func NewEventBroker() *EventBroker {
	return &EventBroker{}
}

// Subscribe adds a new subscriber to the broker.
func (b *EventBroker) Subscribe() chan CapacityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan CapacityEvent, 1) // Buffered channel
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Broadcast sends the event to all subscribers. A subscriber with a full
// channel is skipped, never waited on.
func (b *EventBroker) Broadcast(event CapacityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subscriber := range b.subscribers {
		select {
		case subscriber <- event:
		default:
			fmt.Println("Warning: subscriber channel is full. Event not sent.")
		}
	}
}

// GuardCapacity checks the volume holding path and returns an error when its
// usage is above thresholdPercent. A dump onto a full volume takes the dialer
// down with it, so callers abort the backup on error. A threshold of zero or
// below selects DefaultUsageThreshold.
func GuardCapacity(path string, thresholdPercent float64) (float64, error) {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultUsageThreshold
	}

	usage, err := disk.Usage(nearestExisting(path))
	if err != nil {
		return 0, fmt.Errorf("error getting disk usage for %s: %w", path, err)
	}

	if usage.UsedPercent > thresholdPercent {
		event := CapacityEvent{
			Path:        path,
			UsedPercent: usage.UsedPercent,
			Message:     fmt.Sprintf("Backup volume for %s at %.1f%% capacity, above the %.1f%% threshold", path, usage.UsedPercent, thresholdPercent),
		}
		broker.Broadcast(event)
		notification.NotifyError(errors.New(event.Message))
		if err := notification.WebhookNotification("backup.capacity_warning", event); err != nil {
			log.Printf("capacity warning webhook failed: %v", err)
		}
		return usage.UsedPercent, errors.New(event.Message)
	}

	return usage.UsedPercent, nil
}

// nearestExisting walks up from path until it finds something that exists, so
// a backup dir that has not been created yet still resolves to its volume.
func nearestExisting(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func startLoggerSubscriber(broker *EventBroker) {
	logSub := broker.Subscribe()
	go func() {
		for event := range logSub {
			log.Printf("Logger: %s\n", event.Message)
		}
	}()
}
