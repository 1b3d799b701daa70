package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"glabassets/internal/infrastructure"
	"glabassets/pkg/contracts"
)

// Pinger checks a backend dependency.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ClientCounter reports connected event-stream clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime"`
	Services  map[string]ServiceHealth `json:"services"`
	Runtime   map[string]any           `json:"runtime,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthService provides health check functionality
type HealthService struct {
	db        Pinger
	hub       ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a new health service. db and hub may be nil.
func NewHealthService(db Pinger, hub ClientCounter, logger *slog.Logger) *HealthService {
	return &HealthService{
		db:        db,
		hub:       hub,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health_service"),
	}
}

// HealthCheck reports overall and per-dependency health. The process stays
// healthy when the hosted database is unreachable; it is degraded.
func (s *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   contracts.Version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Services:  make(map[string]ServiceHealth),
		Runtime: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"go_version": runtime.Version(),
		},
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.WarnContext(ctx, "Database health check failed", slog.String("error", err.Error()))
			status.Status = "degraded"
			status.Services["database"] = ServiceHealth{Status: "unhealthy", Message: err.Error()}
		} else {
			status.Services["database"] = ServiceHealth{Status: "healthy"}
		}
	}

	if s.hub != nil {
		status.Runtime["websocket_clients"] = s.hub.ClientCount()
	}

	return status
}

// Version returns build information.
func (s *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}
