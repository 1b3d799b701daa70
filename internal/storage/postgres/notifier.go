package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"glabassets/internal/config"
	"glabassets/internal/notify"
	"glabassets/pkg/contracts/events"
)

// OperationResync is published after the listener reconnects, since
// notifications sent while disconnected are lost.
const OperationResync = "resync"

// Listener is the subset of *pq.Listener the notifier needs.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// ChangeNotifier turns LISTEN/NOTIFY messages on the assets channel into
// catalog refresh events.
type ChangeNotifier struct {
	listener     Listener
	channel      string
	pingInterval time.Duration
	changes      *notify.Broker[events.CatalogRefresh]
	logger       *slog.Logger
}

// NewListener opens a reconnecting pq listener for cfg.
func NewListener(cfg config.DatabaseConfig, logger *slog.Logger) *pq.Listener {
	return pq.NewListener(DSN(cfg), 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Debug("Change listener connected")
		case pq.ListenerEventDisconnected:
			logger.Warn("Change listener disconnected", slog.Any("error", err))
		case pq.ListenerEventReconnected:
			logger.Info("Change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("Change listener connection attempt failed", slog.Any("error", err))
		}
	})
}

// NewChangeNotifier wraps listener for channel.
func NewChangeNotifier(listener Listener, channel string, logger *slog.Logger) *ChangeNotifier {
	logger = logger.With(slog.String("component", "change_notifier"), slog.String("channel", channel))
	return &ChangeNotifier{
		listener:     listener,
		channel:      channel,
		pingInterval: 90 * time.Second,
		changes:      notify.NewBroker[events.CatalogRefresh](logger),
		logger:       logger,
	}
}

// Subscribe registers fn for catalog changes.
func (n *ChangeNotifier) Subscribe(fn func(events.CatalogRefresh)) notify.Dispose {
	return n.changes.Subscribe(fn)
}

// Run listens until ctx is done, then closes the listener.
func (n *ChangeNotifier) Run(ctx context.Context) error {
	if err := n.listener.Listen(n.channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.channel, err)
	}
	defer n.listener.Close()

	n.logger.InfoContext(ctx, "Listening for catalog changes")

	ticker := time.NewTicker(n.pingInterval)
	defer ticker.Stop()

	notifications := n.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-notifications:
			if !ok {
				return fmt.Errorf("notification channel closed")
			}
			n.changes.Publish(n.parse(ctx, msg))

		case <-ticker.C:
			if err := n.listener.Ping(); err != nil {
				n.logger.WarnContext(ctx, "Change listener ping failed", slog.String("error", err.Error()))
			}
		}
	}
}

// parse decodes the trigger payload. A nil notification marks a reconnect.
func (n *ChangeNotifier) parse(ctx context.Context, msg *pq.Notification) events.CatalogRefresh {
	if msg == nil {
		return events.CatalogRefresh{Operation: OperationResync}
	}

	var payload struct {
		Operation string `json:"operation"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal([]byte(msg.Extra), &payload); err != nil {
		n.logger.WarnContext(ctx, "Unreadable change payload",
			slog.String("payload", msg.Extra),
			slog.String("error", err.Error()))
		return events.CatalogRefresh{Operation: OperationResync}
	}

	return events.CatalogRefresh{Operation: payload.Operation, AssetID: payload.ID}
}
