package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.RecordTrain("R", 120, time.Millisecond, nil)
	c.RecordTrain("R", 30, time.Millisecond, nil)
	c.RecordCompress(64, time.Millisecond, nil)
	c.RecordDecompress(64, time.Millisecond, errors.New("boom"))
	c.RecordClamp("G")
	c.RecordClamp("G")

	assert.Equal(t, 150.0, testutil.ToFloat64(c.trainVectors.WithLabelValues("R")))
	assert.Equal(t, 64.0, testutil.ToFloat64(c.blocks.WithLabelValues("compress")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.clamped.WithLabelValues("G")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.opLatency))

	_, err = NewCollector(reg)
	assert.Error(t, err, "metrics cannot be registered twice")
}
