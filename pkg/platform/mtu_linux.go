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
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// DetectMTU probes the path MTU to the well-known DNS address embedded
// in pfx96, over ifindex, marked with mark so the probe is routed the
// same way clatd's own sockets are. The kernel reports the discovered
// PMTU via IPV6_MTU after a connected UDP socket sends at least one
// datagram.
func (d *realDependencies) DetectMTU(pfx96 netip.Prefix, ifindex int, mark uint32) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return 0, fmt.Errorf("open mtu probe socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, int(mark)); err != nil {
		return 0, fmt.Errorf("set mark: %w", err)
	}

	target := googleDNSInPrefix(pfx96)
	sa := &unix.SockaddrInet6{Port: 53, ZoneId: uint32(ifindex)}
	copy(sa.Addr[:], target.AsSlice())
	if err := unix.Connect(fd, sa); err != nil {
		return 0, fmt.Errorf("connect mtu probe: %w", err)
	}
	if err := unix.Sendto(fd, []byte{0}, 0, sa); err != nil {
		return 0, fmt.Errorf("send mtu probe: %w", err)
	}

	mtu, err := unix.GetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_MTU)
	if err != nil {
		return 0, fmt.Errorf("get discovered mtu: %w", err)
	}
	return mtu, nil
}

func googleDNSInPrefix(pfx96 netip.Prefix) netip.Addr {
	b := pfx96.Addr().As16()
	dns := netip.MustParseAddr("8.8.8.8").As4()
	copy(b[12:], dns[:])
	return netip.AddrFrom16(b)
}
