package app

import (
	"glabassets/internal/notify"
	"glabassets/pkg/contracts/domain"
	"glabassets/pkg/contracts/events"
)

// Broadcaster pushes one message to every connected UI client.
type Broadcaster interface {
	Broadcast(messageType events.MessageType, data any)
}

// EventSources are the observables relayed to the UI. Nil fields are
// skipped.
type EventSources struct {
	Downloads interface {
		Subscribe(fn func(events.DownloadProgress)) notify.Dispose
	}
	Updates interface {
		Subscribe(fn func(events.UpdaterMessage)) notify.Dispose
	}
	Catalog interface {
		Subscribe(fn func(events.CatalogRefresh)) notify.Dispose
	}
	Sessions interface {
		Subscribe(fn func(domain.SessionState)) notify.Dispose
	}
}

// RelayEvents subscribes b to every source and returns the disposers in
// subscription order.
func RelayEvents(b Broadcaster, src EventSources) []notify.Dispose {
	var disposers []notify.Dispose

	if src.Downloads != nil {
		disposers = append(disposers, src.Downloads.Subscribe(func(p events.DownloadProgress) {
			b.Broadcast(events.MessageTypeDownloadProgress, p)
		}))
	}
	if src.Updates != nil {
		disposers = append(disposers, src.Updates.Subscribe(func(m events.UpdaterMessage) {
			b.Broadcast(events.MessageTypeUpdaterMessage, m)
		}))
	}
	if src.Catalog != nil {
		disposers = append(disposers, src.Catalog.Subscribe(func(c events.CatalogRefresh) {
			b.Broadcast(events.MessageTypeCatalogRefresh, c)
		}))
	}
	if src.Sessions != nil {
		disposers = append(disposers, src.Sessions.Subscribe(func(s domain.SessionState) {
			b.Broadcast(events.MessageTypeSession, s)
		}))
	}

	return disposers
}
