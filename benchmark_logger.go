package tilekern

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BenchmarkResult captures one benchmark run of the engine for offline
// comparison across machines and revisions.
type BenchmarkResult struct {
	Name       string        `json:"name"`
	Status     string        `json:"status"` // "pass" or "fail"
	Nx         int           `json:"nx,omitempty"`
	Ny         int           `json:"ny,omitempty"`
	DimPoint   int           `json:"dim_point,omitempty"`
	DimVect    int           `json:"dim_vect,omitempty"`
	BlockSize  int           `json:"block_size,omitempty"`
	Scheme     string        `json:"scheme,omitempty"`
	NsPerOp    float64       `json:"ns_per_op,omitempty"`
	PairsPerSec float64     `json:"pairs_per_sec,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// BenchmarkLogger persists benchmark results as a JSON session file.
type BenchmarkLogger struct {
	mu          sync.Mutex
	results     []BenchmarkResult
	logDir      string
	sessionFile string
}

var globalLogger = &BenchmarkLogger{logDir: "benchmark_logs"}

// InitBenchmarkLogger starts a new session file under benchmark_logs/.
func InitBenchmarkLogger(sessionName string) error {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	if err := os.MkdirAll(globalLogger.logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	stamp := time.Now().Format("20060102_150405")
	globalLogger.sessionFile = filepath.Join(globalLogger.logDir,
		fmt.Sprintf("%s_%s.json", sessionName, stamp))
	globalLogger.results = nil
	return globalLogger.flush()
}

// LogBenchmarkResult appends one result and flushes the session to disk so
// a crashed run keeps what it measured.
func LogBenchmarkResult(result BenchmarkResult) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	globalLogger.results = append(globalLogger.results, result)
	globalLogger.flush()
}

func (bl *BenchmarkLogger) flush() error {
	if bl.sessionFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(bl.results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	return os.WriteFile(bl.sessionFile, data, 0o644)
}
