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
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/HorizonUI/packages-modules-Connectivity/pkg/bpfmap"
	"github.com/HorizonUI/packages-modules-Connectivity/pkg/context"
	"github.com/HorizonUI/packages-modules-Connectivity/pkg/platform"
	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by Start when a CLAT instance is
// already running on this coordinator.
var ErrAlreadyRunning = errors.New("clat: already running")

// ErrNotRunning is returned by Stop when no CLAT instance is running.
var ErrNotRunning = errors.New("clat: not running")

// Coordinator drives a single CLAT instance through its lifecycle. Its
// exported methods serialize on an internal mutex so a single
// Coordinator can be called from multiple goroutines; a Start that
// waits behind a successful one returns ErrAlreadyRunning.
type Coordinator struct {
	deps platform.Dependencies

	mu         sync.Mutex
	tracker    *Tracker
	bpfEnabled bool

	ingress6Map  *bpfmap.Ingress6Map
	egress4Map   *bpfmap.Egress4Map
	cookieTagMap *bpfmap.CookieTagMap
}

// New constructs a Coordinator over the given Dependencies. The three
// BPF fast-path maps are opened eagerly (and may be nil, if their
// pinned objects aren't present on this host); every other side effect
// happens lazily, inside Start.
func New(deps platform.Dependencies) (*Coordinator, error) {
	c := &Coordinator{deps: deps}
	var err error
	c.ingress6Map, err = deps.BpfIngress6Map()
	if err != nil && !errors.Is(err, bpfmap.ErrNotPinned) {
		return nil, fmt.Errorf("open ingress6 map: %w", err)
	}
	c.egress4Map, err = deps.BpfEgress4Map()
	if err != nil && !errors.Is(err, bpfmap.ErrNotPinned) {
		return nil, fmt.Errorf("open egress4 map: %w", err)
	}
	c.cookieTagMap, err = deps.BpfCookieTagMap()
	if err != nil && !errors.Is(err, bpfmap.ErrNotPinned) {
		return nil, fmt.Errorf("open cookie tag map: %w", err)
	}
	return c, nil
}

// Running reports whether a CLAT instance is currently up.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker != nil
}

// Start brings up a CLAT instance translating over iface for netID,
// against the given /96 NAT64 prefix, and returns the chosen
// checksum-neutral IPv6 source address. Every fallible step pushes its
// own undo onto a stack that is unwound, in reverse, on any later
// failure — so a caller never has to reason about partial state.
func (c *Coordinator) Start(ctx context.Context, iface string, netID uint32, pfx96 netip.Prefix) (netip.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := context.LoggerFrom(ctx).With("component", "clat", "iface", iface)

	if c.tracker != nil {
		return netip.Addr{}, ErrAlreadyRunning
	}
	if pfx96.Bits() != 96 {
		return netip.Addr{}, ErrInvalidPrefixLength
	}

	var undo []func()
	unwind := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	v4, err := c.deps.SelectIPv4Address(InitV4AddrString, InitV4AddrPrefixLen)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("select ipv4 address: %w", err)
	}
	mark := Fwmark(netID)

	v6, err := c.deps.GenerateIPv6Address(iface, v4, pfx96)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("generate ipv6 address: %w", err)
	}

	packetSock, err := c.deps.OpenPacketSocket()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("open packet socket: %w", err)
	}
	defer packetSock.Close() // clatd dups this fd; the coordinator's copy is always closed

	rawSock6, err := c.deps.OpenRawSocket6(mark)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("open raw socket6: %w", err)
	}
	defer rawSock6.Close() // clatd's write side; marked so its egress is accounted on netID

	ifIndex, err := c.deps.InterfaceIndex(iface)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("get interface index %s: %w", iface, err)
	}
	if ifIndex == platform.InvalidIfindex {
		return netip.Addr{}, fmt.Errorf("interface %s does not exist", iface)
	}

	if err := c.deps.AddAnycastSetsockopt(rawSock6, v6, ifIndex); err != nil {
		return netip.Addr{}, fmt.Errorf("add anycast address: %w", err)
	}

	cookie, err := c.deps.GetSocketCookie(rawSock6)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("get socket cookie: %w", err)
	}
	if err := c.tagSocket(cookie); err != nil {
		return netip.Addr{}, fmt.Errorf("tag socket: %w", err)
	}
	undo = append(undo, func() {
		if err := c.untagSocket(cookie); err != nil {
			log.Error("untag socket during unwind", "error", err)
		}
	})

	if err := c.deps.ConfigurePacketSocket(packetSock, v6, ifIndex); err != nil {
		unwind()
		return netip.Addr{}, fmt.Errorf("configure packet socket: %w", err)
	}

	v4Iface := ClatPrefix + iface
	tunFd, err := c.deps.CreateTunInterface(v4Iface)
	if err != nil {
		unwind()
		return netip.Addr{}, fmt.Errorf("create tun interface: %w", err)
	}
	defer tunFd.Close()
	// No qdisc exists on the v4- interface yet, so the deferred Close of
	// the TUN fd above is the only cleanup this step needs; nothing is
	// pushed onto undo.

	v4IfIndex, err := c.deps.InterfaceIndex(v4Iface)
	if err != nil {
		unwind()
		return netip.Addr{}, fmt.Errorf("get interface index %s: %w", v4Iface, err)
	}
	if v4IfIndex == platform.InvalidIfindex {
		unwind()
		return netip.Addr{}, fmt.Errorf("interface %s does not exist", v4Iface)
	}

	netd := c.deps.Netd()
	if err := netd.InterfaceSetEnableIPv6(v4Iface, false); err != nil {
		unwind()
		return netip.Addr{}, fmt.Errorf("disable ipv6 on %s: %w", v4Iface, err)
	}

	detected, err := c.deps.DetectMTU(pfx96, ifIndex, mark)
	if err != nil {
		unwind()
		return netip.Addr{}, fmt.Errorf("detect mtu: %w", err)
	}
	mtu := AdjustMTU(detected)

	if err := netd.InterfaceSetMTU(v4Iface, mtu); err != nil {
		unwind()
		return netip.Addr{}, fmt.Errorf("set mtu on %s: %w", v4Iface, err)
	}

	if err := netd.InterfaceSetCfg(v4Iface, v4, 32); err != nil {
		unwind()
		return netip.Addr{}, fmt.Errorf("configure %s: %w", v4Iface, err)
	}

	pid, err := c.deps.StartClatd(tunFd, packetSock, rawSock6, iface, pfx96.String(), v4.String(), v6.String())
	if err != nil {
		unwind()
		return netip.Addr{}, fmt.Errorf("start clatd: %w", err)
	}
	undo = append(undo, func() {
		if err := c.deps.StopClatd(pid); err != nil {
			log.Error("stop clatd during unwind", "error", err)
		}
	})

	tracker := &Tracker{
		Iface:     iface,
		IfIndex:   ifIndex,
		V4Iface:   v4Iface,
		V4IfIndex: v4IfIndex,
		V4:        v4,
		V6:        v6,
		Pfx96:     pfx96,
		Pid:       pid,
		Cookie:    cookie,
	}
	c.tracker = tracker
	c.maybeStartBpf(ctx, tracker)
	recordStarted(iface, c.bpfEnabled)

	log.Info("clat started", "v6", v6, "v4", v4, "pid", pid)
	return v6, nil
}

// Stop tears down the running CLAT instance. Teardown of the BPF fast
// path (maybeStopBpf) is best-effort and never prevents the rest of
// Stop from proceeding. The coordinator is left stopped even when
// stopping clatd or untagging its socket fails; that error is returned.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	log := context.LoggerFrom(ctx).With("component", "clat", "iface", func() string {
		if c.tracker == nil {
			return ""
		}
		return c.tracker.Iface
	}())

	if c.tracker == nil {
		return ErrNotRunning
	}
	tracker := c.tracker
	defer func() {
		c.tracker = nil
		recordStopped(tracker.Iface)
	}()

	c.maybeStopBpf(ctx, tracker)

	if err := c.deps.StopClatd(tracker.Pid); err != nil {
		return fmt.Errorf("stop clatd: %w", err)
	}
	if err := c.untagSocket(tracker.Cookie); err != nil {
		return fmt.Errorf("untag socket: %w", err)
	}

	log.Info("clat stopped")
	return nil
}

func (c *Coordinator) tagSocket(cookie uint64) error {
	if c.cookieTagMap == nil {
		return nil
	}
	return c.cookieTagMap.Insert(bpfmap.CookieTagKey{Cookie: cookie}, bpfmap.CookieTagValue{Uid: AidClat})
}

func (c *Coordinator) untagSocket(cookie uint64) error {
	if c.cookieTagMap == nil {
		return nil
	}
	return c.cookieTagMap.Delete(bpfmap.CookieTagKey{Cookie: cookie})
}

// maybeStartBpf wires the in-kernel fast path for tracker. It is
// entirely best-effort: any failure is logged, unwound just far enough
// to leave no orphaned map entries, and otherwise ignored — clatd
// keeps forwarding packets in userspace regardless.
func (c *Coordinator) maybeStartBpf(ctx context.Context, t *Tracker) {
	log := context.LoggerFrom(ctx).With("component", "clat-bpf", "iface", t.Iface)
	c.bpfEnabled = false
	if c.ingress6Map == nil || c.egress4Map == nil {
		log.Debug("bpf fast path unavailable, forwarding maps not pinned")
		return
	}

	ethernet, err := c.deps.IsEthernet(t.Iface)
	if err != nil {
		log.Warn("determine link layer, skipping bpf fast path", "error", err)
		return
	}

	pfx96Bytes := t.Pfx96.Addr().As16()
	v6Bytes := t.V6.As16()
	v4Bytes := t.V4.As4()

	var oifIsEthernet uint16
	if ethernet {
		oifIsEthernet = 1
	}

	egressKey := bpfmap.Egress4Key{Iif: uint32(t.V4IfIndex), Local4: v4Bytes}
	egressVal := bpfmap.Egress4Value{OIf: uint32(t.IfIndex), Local6: v6Bytes, Pfx96: pfx96Bytes, OifIsEthernet: oifIsEthernet}
	if err := c.egress4Map.Insert(egressKey, egressVal); err != nil {
		log.Warn("insert egress4 entry, skipping bpf fast path", "error", err)
		return
	}

	ingressKey := bpfmap.Ingress6Key{Iif: uint32(t.IfIndex), Pfx96: pfx96Bytes, Local6: v6Bytes}
	ingressVal := bpfmap.Ingress6Value{OIf: uint32(t.V4IfIndex), Local4: v4Bytes}
	if err := c.ingress6Map.Insert(ingressKey, ingressVal); err != nil {
		log.Warn("insert ingress6 entry, skipping bpf fast path", "error", err)
		_ = c.egress4Map.Delete(egressKey)
		return
	}

	if err := c.deps.TcQdiscAddClsact(t.V4IfIndex); err != nil {
		log.Warn("add clsact qdisc, skipping bpf fast path", "error", err)
		_ = c.egress4Map.Delete(egressKey)
		_ = c.ingress6Map.Delete(ingressKey)
		return
	}

	if err := c.deps.TcFilterAddBpf(t.V4IfIndex, false, unix.ETH_P_IP, PrioClat, bpfmap.Egress4ProgPath); err != nil {
		log.Warn("add egress4 filter, skipping bpf fast path", "error", err)
		_ = c.egress4Map.Delete(egressKey)
		_ = c.ingress6Map.Delete(ingressKey)
		return
	}

	if err := c.deps.TcFilterAddBpf(t.IfIndex, true, unix.ETH_P_IPV6, PrioClat, bpfmap.IngressProgPath(ethernet)); err != nil {
		log.Warn("add ingress6 filter, skipping bpf fast path", "error", err)
		_ = c.deps.TcFilterDel(t.V4IfIndex, false, unix.ETH_P_IP, PrioClat)
		_ = c.egress4Map.Delete(egressKey)
		_ = c.ingress6Map.Delete(ingressKey)
		return
	}

	c.bpfEnabled = true
	log.Debug("bpf fast path enabled")
}

// maybeStopBpf reverses maybeStartBpf, in the reverse order: filters
// first, then maps last — so that if this is interrupted, scanning the
// maps still reveals which forwarding rules are stale.
func (c *Coordinator) maybeStopBpf(ctx context.Context, t *Tracker) {
	log := context.LoggerFrom(ctx).With("component", "clat-bpf", "iface", t.Iface)
	if c.ingress6Map == nil || c.egress4Map == nil {
		return
	}

	if err := c.deps.TcFilterDel(t.IfIndex, true, unix.ETH_P_IPV6, PrioClat); err != nil {
		log.Warn("remove ingress6 filter", "error", err)
	}
	if err := c.deps.TcFilterDel(t.V4IfIndex, false, unix.ETH_P_IP, PrioClat); err != nil {
		log.Warn("remove egress4 filter", "error", err)
	}

	pfx96Bytes := t.Pfx96.Addr().As16()
	v6Bytes := t.V6.As16()
	v4Bytes := t.V4.As4()
	egressKey := bpfmap.Egress4Key{Iif: uint32(t.V4IfIndex), Local4: v4Bytes}
	ingressKey := bpfmap.Ingress6Key{Iif: uint32(t.IfIndex), Pfx96: pfx96Bytes, Local6: v6Bytes}
	if err := c.egress4Map.Delete(egressKey); err != nil {
		log.Warn("remove egress4 entry", "error", err)
	}
	if err := c.ingress6Map.Delete(ingressKey); err != nil {
		log.Warn("remove ingress6 entry", "error", err)
	}
}
