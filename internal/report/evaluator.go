package report

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/timmy/transformer/internal/domain"
	"github.com/timmy/transformer/internal/logger"
)

// Evaluator turns task reports into a verdict and a statistics document.
type Evaluator struct {
	// Detailed also logs the stack detail of every error entry.
	Detailed bool
}

// Evaluate writes a task summary to log and returns the verdict. A job
// succeeds only when there is at least one report and every report passed;
// no reports at all is indeterminate. Statistics problems never change the
// verdict; they degrade to an empty document.
func (e *Evaluator) Evaluate(log *logger.Logger, reports []domain.TaskReport) *domain.JobResult {
	if log == nil {
		log = logger.GetDefault()
	}

	ok := true
	log.Info("Transformation tasks summaries:")
	for i := range reports {
		rep := &reports[i]
		taskLog := log.WithField(logger.FieldTask, rep.TaskName)
		if rep.Passed() {
			taskLog.Infof("%s: %s", rep.TaskName, rep.Summary)
			continue
		}

		ok = false
		taskLog.Errorf("%s: %s", rep.TaskName, rep.Summary)
		if e.Detailed {
			for _, entry := range rep.Errors {
				taskLog.Error(entry.Message)
				if entry.StackTrace != "" {
					taskLog.Error(entry.StackTrace)
				}
			}
		}
	}

	stats, err := Statistics(reports)
	if err != nil {
		log.WithError(err).Warn("Error assembling statistics")
		stats = domain.Statistics{}
	}

	result := &domain.JobResult{Statistics: stats}
	switch {
	case len(reports) == 0:
		log.Warn("No task reports were produced, the transformation outcome cannot be determined")
		result.Outcome = domain.OutcomeIndeterminate
	case ok:
		result.Outcome = domain.OutcomeSucceeded
		result.Success = true
	default:
		result.Outcome = domain.OutcomeFailed
	}
	return result
}

// Statistics aggregates task counts and metrics. Numeric metrics are summed
// into totals; other metrics, nested documents included, are kept per task.
// Only non-finite numbers and unserializable values fail.
func Statistics(reports []domain.TaskReport) (domain.Statistics, error) {
	var succeeded, failed, errs int
	metrics := make(map[string]interface{})
	totals := make(map[string]float64)

	for i := range reports {
		rep := &reports[i]
		if rep.Passed() {
			succeeded++
		} else {
			failed++
		}
		errs += len(rep.Errors)

		if len(rep.Metrics) == 0 {
			continue
		}
		for name, value := range rep.Metrics {
			n, numeric, err := metricValue(value)
			if err != nil {
				return nil, fmt.Errorf("task %q metric %q: %w", rep.TaskName, name, err)
			}
			if numeric {
				totals[name] += n
			}
		}
		metrics[taskKey(metrics, rep.TaskName)] = rep.Metrics
	}

	stats := domain.Statistics{
		"tasks":     len(reports),
		"succeeded": succeeded,
		"failed":    failed,
		"errors":    errs,
		"metrics":   metrics,
		"totals":    totals,
	}

	// the document has to survive serialization to be useful to anyone
	if _, err := json.Marshal(stats); err != nil {
		return nil, fmt.Errorf("statistics are not serializable: %w", err)
	}
	return stats, nil
}

func metricValue(v interface{}) (float64, bool, error) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false, err
		}
		n = f
	default:
		// strings, flags, null and nested documents are kept per task only
		return 0, false, nil
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, fmt.Errorf("metric is not a finite number")
	}
	return n, true, nil
}

// taskKey makes repeated task names unique in the metrics document.
func taskKey(existing map[string]interface{}, name string) string {
	if _, taken := existing[name]; !taken {
		return name
	}
	for i := 2; ; i++ {
		key := fmt.Sprintf("%s#%d", name, i)
		if _, taken := existing[key]; !taken {
			return key
		}
	}
}
