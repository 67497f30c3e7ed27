package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveReconcile(t *testing.T) {
	r := NewRecorder()

	r.ObserveReconcile("present", "create", "ok", 20*time.Millisecond)
	r.ObserveReconcile("present", "create", "ok", 30*time.Millisecond)
	r.ObserveReconcile("absent", "none", "ok", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.reconciles.WithLabelValues("present", "create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconciles.WithLabelValues("absent", "none", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestObserveCommit(t *testing.T) {
	r := NewRecorder()

	r.ObserveCommit(true, time.Second)
	r.ObserveCommit(false, 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.commits.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.commits.WithLabelValues("false")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveReconcile("present", "none", "ok", time.Millisecond)
		r.ObserveCommit(true, time.Second)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveReconcile("present", "update", "ok", 10*time.Millisecond)

	path := filepath.Join(t.TempDir(), "textfile", "panos_ike.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.True(t, strings.Contains(content, `panos_ike_profile_reconciles_total{action="update",result="ok",state="present"} 1`))
	assert.True(t, strings.Contains(content, "panos_ike_last_run_timestamp_seconds"))
}

func TestWriteTextfileEmptyPath(t *testing.T) {
	assert.NoError(t, NewRecorder().WriteTextfile(""))
}
