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

package bpfmap

// Pinned BPF object paths. These mirror the fixed locations the CLAT
// tc programs and their loader agree on; a coordinator on a host
// without the BPF fast path loaded simply fails ErrNotPinned on open.
const (
	CookieTagMapPath = "/sys/fs/bpf/netd_shared/map_netd_cookie_tag_map"
	Egress4MapPath   = "/sys/fs/bpf/net_shared/map_clatd_clat_egress4_map"
	Ingress6MapPath  = "/sys/fs/bpf/net_shared/map_clatd_clat_ingress6_map"
	Egress4ProgPath  = "/sys/fs/bpf/net_shared/prog_clatd_schedcls_egress4_clat_rawip"
)

// IngressProgPath returns the pinned path of the ingress6
// classifier program, which differs by L2 framing.
func IngressProgPath(ethernet bool) string {
	if ethernet {
		return "/sys/fs/bpf/net_shared/prog_clatd_schedcls_ingress6_clat_ether"
	}
	return "/sys/fs/bpf/net_shared/prog_clatd_schedcls_ingress6_clat_rawip"
}

// Ingress6Key identifies a v6 flow destined for translation back to v4.
// Field order and sizes mirror the kernel struct clat_ingress6_key; the
// two address fields are raw network-order bytes, not host integers.
type Ingress6Key struct {
	Iif    uint32
	Pfx96  [16]byte
	Local6 [16]byte
}

// Ingress6Value carries the v4 address translated frames are rewritten to.
type Ingress6Value struct {
	OIf    uint32
	Local4 [4]byte
}

// Egress4Key identifies a v4 flow originating from the CLAT's own TUN.
type Egress4Key struct {
	Iif    uint32
	Local4 [4]byte
}

// Egress4Value carries the v6 source/destination the frame is rewritten
// to, and whether the uplink the translated frame egresses on uses
// Ethernet framing.
type Egress4Value struct {
	OIf           uint32
	Local6        [16]byte
	Pfx96         [16]byte
	OifIsEthernet uint16
}

// CookieTagKey is a socket cookie, as returned by SO_COOKIE.
type CookieTagKey struct {
	Cookie uint64
}

// CookieTagValue tags a socket's traffic with an accounting uid so the
// separate per-uid traffic-accounting subsystem doesn't double-count
// the CLAT daemon's own raw-socket packets.
type CookieTagValue struct {
	Uid uint32
	Tag uint32
}

// Ingress6Map is the pinned ingress6 forwarding map.
type Ingress6Map = Map[Ingress6Key, Ingress6Value]

// Egress4Map is the pinned egress4 forwarding map.
type Egress4Map = Map[Egress4Key, Egress4Value]

// CookieTagMap is the pinned socket-cookie accounting-tag map.
type CookieTagMap = Map[CookieTagKey, CookieTagValue]

// OpenIngress6Map opens the pinned ingress6 map.
func OpenIngress6Map() (*Ingress6Map, error) {
	return open[Ingress6Key, Ingress6Value](Ingress6MapPath)
}

// OpenEgress4Map opens the pinned egress4 map.
func OpenEgress4Map() (*Egress4Map, error) {
	return open[Egress4Key, Egress4Value](Egress4MapPath)
}

// OpenCookieTagMap opens the pinned socket-cookie accounting-tag map.
func OpenCookieTagMap() (*CookieTagMap, error) {
	return open[CookieTagKey, CookieTagValue](CookieTagMapPath)
}
