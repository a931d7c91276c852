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
	"fmt"
	"net/netip"
)

// Tracker records the full state of a single running CLAT instance:
// every identifier needed to tear it back down, in the reverse order
// it was acquired.
type Tracker struct {
	// Iface is the uplink interface CLAT is running over, e.g. "wlan0".
	Iface string
	// IfIndex is the ifindex of Iface.
	IfIndex int
	// V4Iface is the name of the TUN interface, e.g. "v4-wlan0".
	V4Iface string
	// V4IfIndex is the ifindex of V4Iface.
	V4IfIndex int
	// V4 is the synthetic IPv4 address assigned to V4Iface.
	V4 netip.Addr
	// V6 is the checksum-neutral IPv6 address clatd sources traffic from.
	V6 netip.Addr
	// Pfx96 is the NAT64 prefix this instance translates against.
	Pfx96 netip.Prefix
	// Pid is the process id of the running clatd daemon.
	Pid int
	// Cookie is the socket cookie of clatd's tagged raw socket.
	Cookie uint64
}

// String renders the tracker the way a diagnostic dump would.
func (t *Tracker) String() string {
	return fmt.Sprintf(
		"iface: %s, ifIndex: %d, v4Iface: %s, v4IfIndex: %d, v4Addr: %s, v6Addr: %s, nat64Prefix: %s, pid: %d, cookie: %d",
		t.Iface, t.IfIndex, t.V4Iface, t.V4IfIndex, t.V4, t.V6, t.Pfx96, t.Pid, t.Cookie,
	)
}

// Equal reports whether two trackers describe the same running instance.
func (t *Tracker) Equal(o *Tracker) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Iface == o.Iface &&
		t.IfIndex == o.IfIndex &&
		t.V4Iface == o.V4Iface &&
		t.V4IfIndex == o.V4IfIndex &&
		t.V4 == o.V4 &&
		t.V6 == o.V6 &&
		t.Pfx96 == o.Pfx96 &&
		t.Pid == o.Pid &&
		t.Cookie == o.Cookie
}
