package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/enginelab/test-orchestrator/types"
)

const (
	MetricsNamespace = "testorch"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_started_total",
		Help:      "Count of test runs started",
	}, []string{
		"mode",
	})

	runsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_completed_total",
		Help:      "Count of test runs reaching a terminal state",
	}, []string{
		"mode",
		"state",
	})

	runTests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests_total",
		Help:      "Per-run test counts by outcome",
	}, []string{
		"mode",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the most recent run",
	}, []string{
		"mode",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordRunStarted(mode string) {
	if Debug {
		log.Debug("metric inc", "m", "runs_started_total", "mode", mode)
	}
	runsStarted.WithLabelValues(mode).Inc()
}

func RecordRunCompleted(mode string, state string, summary types.Summary) {
	if Debug {
		log.Debug("metric inc",
			"m", "runs_completed_total",
			"mode", mode,
			"state", state,
			"total", summary.Total)
	}
	runsCompleted.WithLabelValues(mode, state).Inc()
	runTests.WithLabelValues(mode, "passed").Add(float64(summary.Passed))
	runTests.WithLabelValues(mode, "failed").Add(float64(summary.Failed))
	runTests.WithLabelValues(mode, "skipped").Add(float64(summary.Skipped))
	runDuration.WithLabelValues(mode).Set(summary.DurationSeconds)
}
