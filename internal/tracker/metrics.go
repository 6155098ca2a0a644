/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	trackedRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventkeeper_tracked_records",
		Help: "Number of event records currently tracked",
	})

	channelsProvisioned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventkeeper_channels_provisioned_total",
		Help: "Total number of event channels created",
	})

	channelsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventkeeper_channels_deleted_total",
		Help: "Total number of event channels deleted by the sweep",
	})

	sweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventkeeper_sweeps_total",
		Help: "Total number of sweep passes by result",
	}, []string{"result"})

	malformedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventkeeper_malformed_records_total",
		Help: "Total number of records skipped because of a malformed timestamp",
	})

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventkeeper_sweep_duration_seconds",
		Help:    "Duration of sweep passes",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	metrics.Registry.MustRegister(
		trackedRecords,
		channelsProvisioned,
		channelsDeleted,
		sweepsTotal,
		malformedRecords,
		sweepDuration,
	)
}
