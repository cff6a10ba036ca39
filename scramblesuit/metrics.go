// Copyright 2026 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scramblesuit

import (
	"time"

	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "scramblesuit"

// Metrics counts ticket events. A nil *Metrics discards everything.
type Metrics struct {
	issued          prometheus.Counter
	resumptions     *prometheus.CounterVec
	rotations       prometheus.Counter
	persistFailures prometheus.Counter
	degraded        prometheus.Gauge
}

// NewMetrics creates the ticket metrics and registers them with reg, if not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tickets_issued_total",
			Help:      "Session tickets issued.",
		}),
		resumptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "resumptions_total",
			Help:      "Resumption attempts by result.",
		}, []string{"result"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "key_rotations_total",
			Help:      "Rotations of the session ticket keys.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "key_persist_failures_total",
			Help:      "Failures to persist session ticket keys.",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "key_material_degraded",
			Help:      "1 while the in-memory ticket keys are not persisted.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.issued, m.resumptions, m.rotations, m.persistFailures, m.degraded)
	}
	return m
}

// KeyHooks returns hooks that feed key material events into m.
func (m *Metrics) KeyHooks() ticket.KeyHooks {
	if m == nil {
		return ticket.KeyHooks{}
	}
	return ticket.KeyHooks{
		Rotated: func(time.Time) { m.rotations.Inc() },
		Persisted: func() {
			m.degraded.Set(0)
		},
		PersistFailed: func(error) {
			m.persistFailures.Inc()
			m.degraded.Set(1)
		},
	}
}

func (m *Metrics) ticketIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

func (m *Metrics) resumptionAttempted(err error) {
	if m == nil {
		return
	}
	m.resumptions.WithLabelValues(ticket.Reason(err)).Inc()
}
