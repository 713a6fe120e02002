package valueobjects

type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
)

func NewHealthyStatus() HealthStatus {
	return HealthStatusOK
}

// NewHealthStatus reports degraded while delivery is paused, either because
// the device is offline or because the circuit breaker is open.
func NewHealthStatus(online bool, circuitOpen bool) HealthStatus {
	if !online || circuitOpen {
		return HealthStatusDegraded
	}
	return HealthStatusOK
}

func (h HealthStatus) String() string {
	return string(h)
}
