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

package platform

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// SelectIPv4Address picks the first address in seedPrefix/prefixLen
// that is not already assigned to any interface on the host.
func (d *realDependencies) SelectIPv4Address(seedPrefix string, prefixLen int) (netip.Addr, error) {
	base, err := netip.ParseAddr(seedPrefix)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse seed prefix: %w", err)
	}
	pfx := netip.PrefixFrom(base, prefixLen)

	inUse := make(map[netip.Addr]bool)
	links, err := netlink.LinkList()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("list links: %w", err)
	}
	for _, link := range links {
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ip, ok := netip.AddrFromSlice(a.IP.To4())
			if ok {
				inUse[ip] = true
			}
		}
	}

	for addr := pfx.Addr(); pfx.Contains(addr); addr = addr.Next() {
		if !inUse[addr] {
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no free address in %s", pfx)
}

// GenerateIPv6Address derives a checksum-neutral interface identifier
// for v4 within pfx96, routed over iface. The IID is folded from the
// v4 address and a hash of the interface name so that two CLAT
// instances on different uplinks never collide. v4 is placed in the low
// 32 bits, the hash is XORed into the low 64 bits, and the last 16-bit
// word is then adjusted so the address's ones-complement sum equals
// that of pfx96 with v4 embedded — the same checksum-neutral
// construction RFC 6052 requires of a NAT64 translator's own address.
func (d *realDependencies) GenerateIPv6Address(iface string, v4 netip.Addr, pfx96 netip.Prefix) (netip.Addr, error) {
	if !pfx96.Addr().Is6() || pfx96.Bits() != 96 {
		return netip.Addr{}, fmt.Errorf("nat64 prefix must be /96")
	}
	ifaceSum := crc64.Checksum([]byte(iface), crc64.MakeTable(crc64.ISO))

	b := pfx96.Addr().As16()
	v4b := v4.As4()
	copy(b[12:], v4b[:])

	var fold [8]byte
	binary.BigEndian.PutUint64(fold[:], ifaceSum)
	checksumNeutralFold(b[8:16], fold[:])

	addr := netip.AddrFrom16(b)
	return addr, nil
}

// checksumNeutralFold XORs src into dst two bytes at a time and then
// adjusts the final word so the ones-complement sum of dst is
// unchanged by the XOR, the standard trick for picking a
// checksum-neutral IID.
func checksumNeutralFold(dst, src []byte) {
	var before, after uint32
	for i := 0; i < len(dst); i += 2 {
		before += uint32(dst[i])<<8 | uint32(dst[i+1])
	}
	for i := 0; i < len(dst) && i < len(src); i += 2 {
		dst[i] ^= src[i]
		dst[i+1] ^= src[i+1]
	}
	for i := 0; i < len(dst); i += 2 {
		after += uint32(dst[i])<<8 | uint32(dst[i+1])
	}
	diff := int32(before) - int32(after)
	for diff != 0 {
		adj := uint16(dst[len(dst)-2])<<8 | uint16(dst[len(dst)-1])
		// 0x0000 and 0xffff are both zero in ones-complement arithmetic,
		// so a step across the 16-bit wrap skips the second of them.
		if diff > 0 {
			adj++
			if adj == 0 {
				adj = 1
			}
			diff--
		} else {
			adj--
			if adj == 0xffff {
				adj = 0xfffe
			}
			diff++
		}
		dst[len(dst)-2] = byte(adj >> 8)
		dst[len(dst)-1] = byte(adj)
	}
}
