package metrics

import "testing"

func TestBreakerStateValue(t *testing.T) {
	cases := []struct {
		state string
		want  float64
	}{
		{"closed", 0},
		{"half-open", 0.5},
		{"open", 1},
		{"unknown", 0},
	}
	for _, c := range cases {
		if got := BreakerStateValue(c.state); got != c.want {
			t.Errorf("BreakerStateValue(%q) = %v, want %v", c.state, got, c.want)
		}
	}
}

func TestCountersIncrement(t *testing.T) {
	RetryAttempts.WithLabelValues("src-1", "get_libraries").Inc()
	CircuitBreakerTransitions.WithLabelValues("src-1", "closed", "open").Inc()
	SyncItemsProcessed.WithLabelValues("src-1", "lib-1").Add(3)
	ProgressQueueDepth.WithLabelValues("pending").Set(5)
}
