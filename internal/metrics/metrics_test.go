package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/treehug/internal/model"
)

func TestMetrics_Observe(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.ObserveFile("go", OutcomeOK, 3*time.Millisecond)
	m.ObserveFile("go", OutcomeOK, time.Millisecond)
	m.ObserveFile("go", OutcomeCached, 0)
	m.ObserveCacheHit()
	m.ObserveSummary(&model.FileSummary{
		Lint:   []model.Diagnostic{{Tier: model.TierLint, Rule: "debug-print"}, {Tier: model.TierSemantic, Rule: "undefined-symbol"}},
		Syntax: []model.Diagnostic{{Tier: model.TierSyntax, Rule: "parse-error"}},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesAnalyzed.WithLabelValues("go", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesAnalyzed.WithLabelValues("go", OutcomeCached)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Diagnostics.WithLabelValues("semantic", "undefined-symbol")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Diagnostics.WithLabelValues("syntax", "parse-error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AnalyzeDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFile("go", OutcomeOK, time.Second)
	m.ObserveCacheHit()
	m.ObserveSummary(&model.FileSummary{})
	assert.NotNil(t, m.Handler())
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.ObserveCacheHit()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "treehug_cache_hits_total 1")
}
