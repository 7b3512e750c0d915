package metrics

import (
	"strconv"
	"time"
)

// RecordCascade records one finished cascade run
func RecordCascade(kind, event string, planned int, duration time.Duration, err error) {
	m := Get()
	m.CascadeRunsTotal.WithLabelValues(kind, event, status(err)).Inc()
	m.CascadeDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.CascadePlannedPaths.WithLabelValues(kind).Observe(float64(planned))
}

// RecordCascadeCoalesced records a cascade skipped because of a held lease
func RecordCascadeCoalesced(kind string) {
	Get().CascadeCoalesced.WithLabelValues(kind).Inc()
}

// RecordScan records one scanner store read ("keys" or "query")
func RecordScan(operation string, err error) {
	Get().ScanOperationsTotal.WithLabelValues(operation, status(err)).Inc()
}

// RecordFanoutWidth records how many collections a nested wildcard expanded to
func RecordFanoutWidth(collection string, width int) {
	Get().ScanFanoutWidth.WithLabelValues(collection).Observe(float64(width))
}

// RecordPoolUnit records one finished pool unit
func RecordPoolUnit(err error) {
	Get().PoolUnitsTotal.WithLabelValues(status(err)).Inc()
}

// PoolUnitStarted and PoolUnitDone track the in-flight gauge
func PoolUnitStarted() { Get().PoolInFlight.WithLabelValues().Inc() }

func PoolUnitDone() { Get().PoolInFlight.WithLabelValues().Dec() }

// RecordPoolMaxInFlight publishes the peak concurrency of a pool run
func RecordPoolMaxInFlight(n int64) {
	Get().PoolMaxInFlight.WithLabelValues().Set(float64(n))
}

// RecordModeration records one moderation verdict
func RecordModeration(modified bool) {
	Get().ModerationVerdictsTotal.WithLabelValues(strconv.FormatBool(modified)).Inc()
}

// RecordBlurCheck records an image safety check outcome
func RecordBlurCheck(outcome string) {
	Get().BlurChecksTotal.WithLabelValues(outcome).Inc()
}

// RecordExternalCall records a call to a collaborator service
func RecordExternalCall(service, operation string, duration time.Duration, err error) {
	m := Get()
	m.ExternalCallsTotal.WithLabelValues(service, operation, status(err)).Inc()
	m.ExternalCallDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordJob records a batch job run and the entities it cascaded
func RecordJob(job string, entities int, err error) {
	m := Get()
	m.JobRunsTotal.WithLabelValues(job, status(err)).Inc()
	m.JobEntitiesTotal.WithLabelValues(job).Add(float64(entities))
}

// RecordRedisOperation records a Redis command outcome
func RecordRedisOperation(operation string, err error) {
	Get().RedisOperationsTotal.WithLabelValues(operation, status(err)).Inc()
}

// RecordError records an error surfaced at an endpoint
func RecordError(errorType, endpoint string) {
	Get().ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
