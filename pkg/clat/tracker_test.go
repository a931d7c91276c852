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
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testTracker() *Tracker {
	return &Tracker{
		Iface:     "wlan0",
		IfIndex:   10,
		V4Iface:   "v4-wlan0",
		V4IfIndex: 11,
		V4:        netip.MustParseAddr("192.0.0.4"),
		V6:        netip.MustParseAddr("64:ff9b::1"),
		Pfx96:     netip.MustParsePrefix("64:ff9b::/96"),
		Pid:       1234,
		Cookie:    42,
	}
}

func TestTrackerEqual(t *testing.T) {
	a, b := testTracker(), testTracker()
	if !a.Equal(b) {
		t.Errorf("identical trackers compared unequal, diff: %s", cmp.Diff(a, b))
	}

	b.Pid = 5678
	if a.Equal(b) {
		t.Error("trackers with different pids compared equal")
	}
	if diff := cmp.Diff(a, b); diff == "" {
		t.Error("expected cmp.Diff to report a difference in Pid")
	}
}

func TestTrackerEqualNil(t *testing.T) {
	var a, b *Tracker
	if !a.Equal(b) {
		t.Error("two nil trackers should compare equal")
	}
	if a.Equal(testTracker()) {
		t.Error("nil tracker should not equal a non-nil one")
	}
}
