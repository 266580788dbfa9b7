package replication

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	prometheusOperationsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regionsync",
			Name:      "operations_recorded_total",
			Help:      "Counts operations appended to the operation log",
		},
		[]string{"table", "operation_type"},
	)

	prometheusRegionDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regionsync",
			Name:      "region_deliveries_total",
			Help:      "Counts delivery attempts of an operation to a single backup region",
		},
		[]string{"region", "outcome"},
	)

	prometheusDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regionsync",
			Name:      "dispatch_total",
			Help:      "Counts dispatch attempts by their outcome",
		},
		[]string{"outcome"},
	)

	prometheusImmediateDispatchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "regionsync",
			Name:      "immediate_dispatch_errors_total",
			Help:      "Counts high priority dispatches that did not reach every region",
		},
	)

	prometheusBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "regionsync",
			Name:      "batches_total",
			Help:      "Counts batch coordinator cycles by result",
		},
		[]string{"result"},
	)

	prometheusBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "regionsync",
			Name:      "batch_duration_seconds",
			Help:      "Time taken by batch coordinator cycles that acquired the lease",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	prometheusQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "regionsync",
			Name:      "queue_depth",
			Help:      "Number of operations waiting in the pending queue",
		},
	)
)

func init() {
	prometheus.MustRegister(
		prometheusOperationsRecorded,
		prometheusRegionDeliveries,
		prometheusDispatches,
		prometheusImmediateDispatchErrors,
		prometheusBatches,
		prometheusBatchDuration,
		prometheusQueueDepth,
	)
}

func prometheusRecordDelivery(region string, ok bool) {
	outcome := "success"

	if !ok {
		outcome = "failure"
	}

	prometheusRegionDeliveries.With(prometheus.Labels{"region": region, "outcome": outcome}).Inc()
}

func prometheusRecordDispatch(outcome string) {
	prometheusDispatches.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func prometheusRecordBatch(result string) {
	prometheusBatches.With(prometheus.Labels{"result": result}).Inc()
}
