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

// Package platform contains the host-facing primitives the CLAT
// coordinator composes into a running translator: interface and
// socket management, BPF fast-path wiring, and clatd process control.
// A fake implementation of Dependencies lets pkg/clat be tested without
// a real Linux host.
package platform

import (
	"net/netip"
	"os"

	"github.com/HorizonUI/packages-modules-Connectivity/pkg/bpfmap"
)

// InvalidIfindex is returned by InterfaceIndex when the interface does not exist.
const InvalidIfindex = 0

// OwnedFd is a file descriptor the coordinator has taken ownership of.
// Dependencies implementations hand these out for sockets and TUN devices
// that a caller must eventually Close.
type OwnedFd struct {
	*os.File
}

// Dependencies is the façade over every host-kernel primitive the
// coordinator's state machine drives. The real implementation is backed
// by netlink, raw sockets, BPF, and an external clatd process; tests
// substitute a fake that records calls.
type Dependencies interface {
	// InterfaceIndex returns the ifindex of the named interface, or
	// InvalidIfindex if it does not exist.
	InterfaceIndex(name string) (ifindex int, err error)

	// IsEthernet reports whether the named interface uses Ethernet
	// framing (as opposed to raw IP, e.g. a cellular rmnet device).
	IsEthernet(name string) (bool, error)

	// CreateTunInterface creates a TUN interface with the given name,
	// returning an fd the caller owns. It does not bring the link up.
	CreateTunInterface(name string) (*OwnedFd, error)

	// SelectIPv4Address picks an unused address from the given seed
	// prefix (e.g. 192.0.0.4/29) that does not collide with any address
	// already configured on the host.
	SelectIPv4Address(seedPrefix string, prefixLen int) (netip.Addr, error)

	// GenerateIPv6Address derives a checksum-neutral IID for v4 inside
	// pfx96, routed over the given uplink interface.
	GenerateIPv6Address(iface string, v4 netip.Addr, pfx96 netip.Prefix) (netip.Addr, error)

	// DetectMTU probes the path MTU to nat64Prefix-embedded google DNS
	// over the given uplink ifindex and netId mark.
	DetectMTU(pfx96 netip.Prefix, ifindex int, mark uint32) (int, error)

	// OpenPacketSocket opens an AF_PACKET socket for reading IPv6 frames
	// off the uplink.
	OpenPacketSocket() (*OwnedFd, error)

	// OpenRawSocket6 opens an AF_INET6 raw socket tagged with mark.
	OpenRawSocket6(mark uint32) (*OwnedFd, error)

	// AddAnycastSetsockopt joins the v6 address as an IPv6 anycast
	// address on the given ifindex for the raw socket fd.
	AddAnycastSetsockopt(fd *OwnedFd, v6 netip.Addr, ifindex int) error

	// ConfigurePacketSocket binds the packet socket to the given
	// interface and attaches the classic BPF filter that keeps only
	// frames destined to v6.
	ConfigurePacketSocket(fd *OwnedFd, v6 netip.Addr, ifindex int) error

	// GetSocketCookie returns the kernel socket cookie for fd.
	GetSocketCookie(fd *OwnedFd) (uint64, error)

	// StartClatd spawns the clatd translation daemon, handing it the
	// three already-opened fds, and returns its pid.
	StartClatd(tunFd, readSock6, writeSock6 *OwnedFd, iface, pfx96, v4, v6 string) (pid int, err error)

	// StopClatd terminates the clatd process with the given pid.
	StopClatd(pid int) error

	// Netd is the local stand-in for the network configuration surface
	// (interface up/down, MTU, address assignment) spec.md places
	// outside this module's scope.
	Netd() NetdClient

	// BpfIngress6Map returns the pinned ingress6 map, or nil if the
	// pinned object is unavailable on this host.
	BpfIngress6Map() (*bpfmap.Ingress6Map, error)

	// BpfEgress4Map returns the pinned egress4 map, or nil if the
	// pinned object is unavailable on this host.
	BpfEgress4Map() (*bpfmap.Egress4Map, error)

	// BpfCookieTagMap returns the pinned cookie-tag map, or nil if the
	// pinned object is unavailable on this host.
	BpfCookieTagMap() (*bpfmap.CookieTagMap, error)

	// TcQdiscAddClsact adds a clsact qdisc to the given ifindex.
	TcQdiscAddClsact(ifindex int) error

	// TcFilterAddBpf attaches the BPF program at progPath as a
	// direct-action classifier on ifindex, in the given direction
	// (ingress=true, egress=false), for the given L3 protocol, at
	// fixed priority.
	TcFilterAddBpf(ifindex int, ingress bool, proto uint16, priority uint16, progPath string) error

	// TcFilterDel removes the classifier installed by TcFilterAddBpf.
	TcFilterDel(ifindex int, ingress bool, proto uint16, priority uint16) error
}

// NetdClient is the subset of network-configuration-daemon operations
// the coordinator needs: enabling/disabling IPv6 on an interface,
// setting its MTU, and assigning it an address and bringing it up.
type NetdClient interface {
	InterfaceSetEnableIPv6(iface string, enabled bool) error
	InterfaceSetMTU(iface string, mtu int) error
	InterfaceSetCfg(iface string, v4 netip.Addr, prefixLen int) error
}
