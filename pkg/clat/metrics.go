/*
Copyright 2023 Avi Zimmerman <avi.zimmerman@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package clat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// startsTotal counts every successful Start, labeled by the uplink
	// interface it was started on.
	startsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clat",
		Name:      "starts_total",
		Help:      "Total number of times a CLAT instance was started.",
	}, []string{"iface"})

	// stopsTotal counts every Stop of a running instance, whether or not
	// its teardown reported an error.
	stopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clat",
		Name:      "stops_total",
		Help:      "Total number of times a CLAT instance was stopped.",
	}, []string{"iface"})

	// running reports whether a CLAT instance is currently up on iface.
	running = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clat",
		Name:      "running",
		Help:      "1 if a CLAT instance is running on this interface, 0 otherwise.",
	}, []string{"iface"})

	// bpfFastPathEnabled reports whether the in-kernel forwarding path
	// is active for the running instance, as opposed to falling back to
	// clatd's userspace translation alone.
	bpfFastPathEnabled = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clat",
		Name:      "bpf_fast_path_enabled",
		Help:      "1 if the BPF fast path is wired for the running instance, 0 otherwise.",
	}, []string{"iface"})

	// forwardingRules reports the current entry count of each pinned
	// forwarding map, refreshed from the kernel each time Dump runs.
	forwardingRules = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "clat",
		Name:      "forwarding_rules",
		Help:      "Current number of entries in a pinned CLAT forwarding map.",
	}, []string{"map"})
)

// recordStarted updates metrics after a successful Start.
func recordStarted(iface string, bpfEnabled bool) {
	startsTotal.WithLabelValues(iface).Inc()
	running.WithLabelValues(iface).Set(1)
	setBpfFastPath(iface, bpfEnabled)
}

// recordStopped updates metrics after Stop, regardless of whether the
// BPF fast path or clatd itself unwound cleanly.
func recordStopped(iface string) {
	stopsTotal.WithLabelValues(iface).Inc()
	running.WithLabelValues(iface).Set(0)
	setBpfFastPath(iface, false)
}

func setBpfFastPath(iface string, enabled bool) {
	v := 0.0
	if enabled {
		v = 1.0
	}
	bpfFastPathEnabled.WithLabelValues(iface).Set(v)
}

// collectForwardingRuleCounts refreshes the forwarding_rules gauge from
// the pinned maps' current contents. Called from Dump, since that is
// already the coordinator's one synchronous "go read the kernel state"
// entry point; a standalone ticker isn't warranted for a single-instance
// coordinator.
func (c *Coordinator) collectForwardingRuleCounts() {
	if c.ingress6Map != nil {
		if n, err := c.ingress6Map.Count(); err == nil {
			forwardingRules.WithLabelValues("ingress6").Set(float64(n))
		}
	}
	if c.egress4Map != nil {
		if n, err := c.egress4Map.Count(); err == nil {
			forwardingRules.WithLabelValues("egress4").Set(float64(n))
		}
	}
}
