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

// Package clat implements a 464XLAT CLAT control-plane coordinator: it
// wires a TUN interface, a pair of raw sockets, and an external clatd
// translation daemon into a running stateless IPv4-over-IPv6
// translator, with an optional in-kernel BPF fast path.
package clat

import (
	"errors"
	"fmt"
	"net/netip"
)

const (
	// ClatPrefix prefixes the name of the TUN interface clatd reads
	// and writes translated packets on, e.g. "v4-wlan0".
	ClatPrefix = "v4-"

	// InitV4AddrString is the seed address of the synthetic IPv4 pool
	// reserved for CLAT use by RFC 7335.
	InitV4AddrString = "192.0.0.4"

	// InitV4AddrPrefixLen is the prefix length of the seed pool above.
	InitV4AddrPrefixLen = 29

	// GoogleDNS4 is the well-known IPv4 address MTU detection probes
	// against, embedded into the NAT64 prefix.
	GoogleDNS4 = "8.8.8.8"

	// AidClat is the accounting uid the BPF fast path tags the
	// coordinator's own raw-socket traffic with, so a separate traffic
	// accounting subsystem does not double-count it.
	AidClat = 1029

	// PrioClat is the fixed tc filter priority CLAT's classifiers
	// install at.
	PrioClat = 4

	// MTUDelta is subtracted from the detected path MTU to leave room
	// for the IPv4-to-IPv6 header expansion.
	MTUDelta = 28

	// IPv6MinMTU is the lowest detected MTU AdjustMTU will consider
	// before subtracting MTUDelta.
	IPv6MinMTU = 1280

	// ClatMaxMTU is the highest detected MTU AdjustMTU will consider
	// before subtracting MTUDelta.
	ClatMaxMTU = 1500 + MTUDelta

	permissionNetwork = 0x1
	permissionSystem  = 0x2
)

// ErrInvalidPrefixLength is returned when a NAT64 prefix is not a /96,
// the only prefix length the translator supports.
var ErrInvalidPrefixLength = errors.New("clat: nat64 prefix must be /96")

// ParseNAT64Prefix parses and validates s as a /96 IPv6 prefix.
func ParseNAT64Prefix(s string) (netip.Prefix, error) {
	pfx, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("parse nat64 prefix: %w", err)
	}
	if !pfx.Addr().Is6() || pfx.Bits() != 96 {
		return netip.Prefix{}, ErrInvalidPrefixLength
	}
	return pfx, nil
}

// Fwmark computes the firewall mark clatd's sockets are tagged with,
// encoding the network id and the permission bits that allow the
// translator to use the network regardless of per-app network
// selection policy. Only the low 16 bits of netID are significant; any
// higher bits are discarded.
func Fwmark(netID uint32) uint32 {
	return netID&0xFFFF |
		1<<16 | // explicitlySelected
		1<<17 | // protectedFromVpn
		(permissionNetwork|permissionSystem)<<18
}

// AdjustMTU clamps mtu to [IPv6MinMTU, ClatMaxMTU] and then reserves
// MTUDelta bytes of headroom for the v4-to-v6 header expansion.
func AdjustMTU(mtu int) int {
	switch {
	case mtu > ClatMaxMTU:
		mtu = ClatMaxMTU
	case mtu < IPv6MinMTU:
		mtu = IPv6MinMTU
	}
	return mtu - MTUDelta
}
