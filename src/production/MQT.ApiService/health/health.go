package health

import (
	"context"
	"fmt"
	"time"

	broker "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker"
)

// Pinger reports whether the backing store answers
type Pinger func(ctx context.Context) error

// BrokerStatus is the read side of the connection table
type BrokerStatus interface {
	Status() []broker.ConnectionStatus
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	storeName string
	ping      Pinger
	brokers   BrokerStatus
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(storeName string, ping Pinger, brokers BrokerStatus) *HealthChecker {
	return &HealthChecker{storeName: storeName, ping: ping, brokers: brokers}
}

// CheckStoreHealth pings the store
func (h *HealthChecker) CheckStoreHealth(ctx context.Context) error {
	if h.ping == nil {
		return nil
	}
	if err := h.ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", h.storeName, err)
	}
	return nil
}

// GetHealthStatus returns the current health status. The gateway is degraded
// when the store is down or no broker is connected.
func (h *HealthChecker) GetHealthStatus(ctx context.Context) map[string]interface{} {
	checks := make(map[string]interface{})
	status := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
		"checks":    checks,
	}

	storeStatus := "ok"
	if err := h.CheckStoreHealth(ctx); err != nil {
		storeStatus = "error"
		checks[h.storeName] = map[string]interface{}{
			"status": storeStatus,
			"error":  err.Error(),
		}
	} else {
		checks[h.storeName] = map[string]interface{}{
			"status": storeStatus,
		}
	}

	connections := []broker.ConnectionStatus{}
	if h.brokers != nil {
		connections = h.brokers.Status()
	}
	connected := 0
	for _, c := range connections {
		if c.Connected {
			connected++
		}
	}
	brokerStatus := "ok"
	if connected == 0 {
		brokerStatus = "disconnected"
	}
	checks["brokers"] = map[string]interface{}{
		"status":      brokerStatus,
		"connected":   connected,
		"connections": connections,
	}

	overallStatus := "ok"
	if storeStatus != "ok" || brokerStatus != "ok" {
		overallStatus = "degraded"
	}
	status["status"] = overallStatus

	return status
}
