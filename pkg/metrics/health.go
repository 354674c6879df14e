package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the body served by the watch-mode health endpoints
type HealthStatus struct {
	Status    string                   `json:"status"` // "healthy", "unhealthy", "ready", "not_ready"
	Timestamp time.Time                `json:"timestamp"`
	Clusters  map[string]ClusterHealth `json:"clusters,omitempty"`
	Message   string                   `json:"message,omitempty"`
	Version   string                   `json:"version,omitempty"`
	Uptime    string                   `json:"uptime,omitempty"`
	StartTime time.Time                `json:"-"`
}

// ClusterHealth is the last reported state of one watched cluster
type ClusterHealth struct {
	Severity string    `json:"severity"`
	Leader   string    `json:"leader,omitempty"`
	Message  string    `json:"message,omitempty"`
	Updated  time.Time `json:"updated"`
}

var (
	healthChecker = newHealthChecker()
)

// HealthChecker tracks the last run result of each watched cluster
type HealthChecker struct {
	mu        sync.RWMutex
	clusters  map[string]ClusterHealth
	watched   []string
	startTime time.Time
	version   string
}

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		clusters:  make(map[string]ClusterHealth),
		startTime: time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetWatched declares the clusters a watch loop is responsible for. The
// process is ready once each of them has reported at least once.
func SetWatched(clusters []string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.watched = append([]string(nil), clusters...)
	sort.Strings(healthChecker.watched)
}

// UpdateCluster records the result of the latest run for cluster. severity
// is the monitoring label (OK, WARNING, CRITICAL, UNKNOWN).
func UpdateCluster(cluster, severity, leader, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.clusters[cluster] = ClusterHealth{
		Severity: severity,
		Leader:   leader,
		Message:  message,
		Updated:  time.Now(),
	}
}

// GetHealth returns the overall health status. A cluster whose last run was
// critical or unknown makes the whole status unhealthy; a handled leader
// change (warning) does not.
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := "healthy"
	clusters := make(map[string]ClusterHealth, len(healthChecker.clusters))

	for name, c := range healthChecker.clusters {
		if c.Severity == "CRITICAL" || c.Severity == "UNKNOWN" {
			status = "unhealthy"
		}
		clusters[name] = c
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Clusters:  clusters,
		Version:   healthChecker.version,
		Uptime:    time.Since(healthChecker.startTime).String(),
		StartTime: healthChecker.startTime,
	}
}

// GetReadiness reports ready once every watched cluster has a result
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := "ready"
	message := ""

	for _, name := range healthChecker.watched {
		if _, ok := healthChecker.clusters[name]; !ok {
			status = "not_ready"
			message = "waiting for first run of " + name
			break
		}
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Message:   message,
		Version:   healthChecker.version,
		Uptime:    time.Since(healthChecker.startTime).String(),
		StartTime: healthChecker.startTime,
	}
}

// HealthHandler returns an HTTP handler for the /health endpoint
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler returns an HTTP handler for the /ready endpoint
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// NewMux returns the watch-mode HTTP mux serving /metrics, /health and /ready
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	return mux
}
