package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"glabassets/internal/infrastructure"
	"glabassets/pkg/contracts"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type clientCount int

func (c clientCount) ClientCount() int { return int(c) }

func TestHealthService_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus string
		wantDB     string
	}{
		{"database up", pingFunc(func(context.Context) error { return nil }), "healthy", "healthy"},
		{"database down", pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }), "degraded", "unhealthy"},
		{"no database", nil, "healthy", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHealthService(tt.db, clientCount(3), infrastructure.DiscardLogger())

			status := svc.HealthCheck(context.Background())

			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, contracts.Version, status.Version)
			assert.Equal(t, tt.wantDB, status.Services["database"].Status)
			assert.Equal(t, 3, status.Runtime["websocket_clients"])
		})
	}
}

func TestHealthService_Version(t *testing.T) {
	svc := NewHealthService(nil, nil, infrastructure.DiscardLogger())
	info := svc.Version()
	assert.Equal(t, contracts.Version, info.Version)
	assert.Equal(t, contracts.APIVersion, info.APIVersion)
}
