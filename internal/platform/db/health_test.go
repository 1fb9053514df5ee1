package db

import "testing"

func TestPoolStats_Healthy(t *testing.T) {
	healthy := &PoolStats{TotalConns: 10, IdleConns: 5, AcquiredConns: 5, MaxConns: 20, Healthy: true}
	if !healthy.Healthy {
		t.Error("expected healthy pool")
	}

	drained := &PoolStats{TotalConns: 0, MaxConns: 20, Healthy: false}
	if drained.Healthy {
		t.Error("expected drained pool to report unhealthy")
	}
}
