package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSynchronize(t *testing.T) {
	initial := testutil.ToFloat64(SynchronizeTotal.WithLabelValues("ok"))

	RecordSynchronize("ok", 0.01)

	if got := testutil.ToFloat64(SynchronizeTotal.WithLabelValues("ok")); got != initial+1 {
		t.Errorf("SynchronizeTotal[ok] = %v, want %v", got, initial+1)
	}
	SynchronizeDuration.Observe(0.01) // should not panic
}

func TestRecordMaterialize(t *testing.T) {
	RecordMaterialize(0.002) // should not panic
}

func TestRecordMaterializeRetry(t *testing.T) {
	initial := testutil.ToFloat64(MaterializeRetries)

	RecordMaterializeRetry()

	if got := testutil.ToFloat64(MaterializeRetries); got != initial+1 {
		t.Errorf("MaterializeRetries = %v, want %v", got, initial+1)
	}
}

func TestRecordExpungeAndExists(t *testing.T) {
	initialExpunge := testutil.ToFloat64(ExpungeTotal)
	initialExists := testutil.ToFloat64(ExistsEmitted)

	RecordExpunge(3)
	RecordExists()

	if got := testutil.ToFloat64(ExpungeTotal); got != initialExpunge+3 {
		t.Errorf("ExpungeTotal = %v, want %v", got, initialExpunge+3)
	}
	if got := testutil.ToFloat64(ExistsEmitted); got != initialExists+1 {
		t.Errorf("ExistsEmitted = %v, want %v", got, initialExists+1)
	}
}

func TestExpungeAndExistsCounters(t *testing.T) {
	initialExpunge := testutil.ToFloat64(ExpungeTotal)
	initialExists := testutil.ToFloat64(ExistsEmitted)

	ExpungeTotal.Inc()
	ExistsEmitted.Inc()

	if got := testutil.ToFloat64(ExpungeTotal); got != initialExpunge+1 {
		t.Errorf("ExpungeTotal = %v, want %v", got, initialExpunge+1)
	}
	if got := testutil.ToFloat64(ExistsEmitted); got != initialExists+1 {
		t.Errorf("ExistsEmitted = %v, want %v", got, initialExists+1)
	}
}

func TestCacheCounters(t *testing.T) {
	initialHits := testutil.ToFloat64(CacheHits)
	initialMisses := testutil.ToFloat64(CacheMisses)
	initialEvictions := testutil.ToFloat64(CacheEvictions)

	CacheHits.Inc()
	CacheMisses.Inc()
	CacheEvictions.Inc()

	if got := testutil.ToFloat64(CacheHits); got != initialHits+1 {
		t.Errorf("CacheHits = %v, want %v", got, initialHits+1)
	}
	if got := testutil.ToFloat64(CacheMisses); got != initialMisses+1 {
		t.Errorf("CacheMisses = %v, want %v", got, initialMisses+1)
	}
	if got := testutil.ToFloat64(CacheEvictions); got != initialEvictions+1 {
		t.Errorf("CacheEvictions = %v, want %v", got, initialEvictions+1)
	}
}

func TestMetricNames(t *testing.T) {
	expected := "mailsync_"

	metricsToCheck := []struct {
		name   string
		metric prometheus.Collector
	}{
		{"ExpungeTotal", ExpungeTotal},
		{"ExistsEmitted", ExistsEmitted},
		{"MaterializeRetries", MaterializeRetries},
	}

	for _, m := range metricsToCheck {
		t.Run(m.name, func(t *testing.T) {
			ch := make(chan prometheus.Metric, 1)
			m.metric.Collect(ch)
			metric := <-ch
			desc := metric.Desc().String()
			if !strings.Contains(desc, expected) {
				t.Errorf("Metric %s description doesn't contain prefix %s: %s", m.name, expected, desc)
			}
		})
	}
}
