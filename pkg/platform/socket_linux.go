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
	"net/netip"
	"os"

	"golang.org/x/sys/unix"
)

// OpenPacketSocket opens an AF_PACKET/SOCK_RAW socket for reading IPv6
// frames off the uplink, later bound and filtered by
// ConfigurePacketSocket. clatd reads its translatable inbound traffic
// from this fd.
func (d *realDependencies) OpenPacketSocket() (*OwnedFd, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_IPV6)))
	if err != nil {
		return nil, fmt.Errorf("open packet socket: %w", err)
	}
	return &OwnedFd{File: os.NewFile(uintptr(fd), "clat-packet-socket")}, nil
}

// OpenRawSocket6 opens an AF_INET6/SOCK_RAW socket and marks it with
// mark, so its traffic is routed and accounted the same way the rest
// of the network's traffic on netId is.
func (d *realDependencies) OpenRawSocket6(mark uint32) (*OwnedFd, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, fmt.Errorf("open raw socket6: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, int(mark)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set mark: %w", err)
	}
	return &OwnedFd{File: os.NewFile(uintptr(fd), "clat-raw-socket6")}, nil
}

// AddAnycastSetsockopt joins v6 as an IPv6 anycast address on ifindex,
// so the kernel accepts packets addressed to it without assigning it
// as a regular interface address.
func (d *realDependencies) AddAnycastSetsockopt(fd *OwnedFd, v6 netip.Addr, ifindex int) error {
	req := unix.IPv6Mreq{Multiaddr: v6.As16(), Interface: uint32(ifindex)}
	if err := unix.SetsockoptIPv6Mreq(int(fd.Fd()), unix.IPPROTO_IPV6, unix.IPV6_JOIN_ANYCAST, &req); err != nil {
		return fmt.Errorf("join anycast: %w", err)
	}
	return nil
}

// ConfigurePacketSocket binds the packet socket to ifindex for IPv6 and
// attaches a classic BPF filter admitting only frames destined to v6 —
// the coordinator does not want the packet socket to see any other
// host traffic on the uplink.
func (d *realDependencies) ConfigurePacketSocket(fd *OwnedFd, v6 netip.Addr, ifindex int) error {
	sll := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IPV6),
		Ifindex:  ifindex,
	}
	if err := unix.Bind(int(fd.Fd()), &sll); err != nil {
		return fmt.Errorf("bind packet socket: %w", err)
	}
	filter := ipv6DestFilter(v6)
	if err := unix.SetsockoptSockFprog(int(fd.Fd()), unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, filter); err != nil {
		return fmt.Errorf("attach filter: %w", err)
	}
	return nil
}

// GetSocketCookie returns the kernel's SO_COOKIE for fd, a stable
// per-socket identifier the BPF cookie-tag map keys accounting on.
func (d *realDependencies) GetSocketCookie(fd *OwnedFd) (uint64, error) {
	cookie, err := unix.GetsockoptUint64(int(fd.Fd()), unix.SOL_SOCKET, unix.SO_COOKIE)
	if err != nil {
		return 0, fmt.Errorf("get socket cookie: %w", err)
	}
	return cookie, nil
}

func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | v>>8
}

// ipv6DestFilter builds a classic-BPF program that accepts only frames
// whose IPv6 destination address is v6, so the packet socket never sees
// other hosts' traffic on a shared uplink. Offsets assume a 14-byte
// Ethernet header ahead of the fixed 40-byte IPv6 header; the
// destination address is the last 16 bytes of that header.
func ipv6DestFilter(v6 netip.Addr) *unix.SockFprog {
	const (
		ethertypeOff = 12
		dstAddrOff   = 14 + 24
	)
	addr := v6.As16()
	var words [4]uint32
	for i := range words {
		words[i] = binary.BigEndian.Uint32(addr[i*4 : i*4+4])
	}

	var prog []unix.SockFilter
	prog = append(prog, unix.SockFilter{Code: unix.BPF_LD | unix.BPF_H | unix.BPF_ABS, K: ethertypeOff})
	ethertypeJeq := len(prog)
	prog = append(prog, unix.SockFilter{Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K, K: unix.ETH_P_IPV6})

	wordJeqs := make([]int, len(words))
	for i, w := range words {
		prog = append(prog, unix.SockFilter{Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS, K: uint32(dstAddrOff + i*4)})
		wordJeqs[i] = len(prog)
		prog = append(prog, unix.SockFilter{Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K, K: w})
	}

	prog = append(prog, unix.SockFilter{Code: unix.BPF_RET | unix.BPF_K, K: 0xffffffff})
	rejectIdx := len(prog)
	prog = append(prog, unix.SockFilter{Code: unix.BPF_RET | unix.BPF_K, K: 0})

	prog[ethertypeJeq].Jf = uint8(rejectIdx - ethertypeJeq - 1)
	for _, idx := range wordJeqs {
		prog[idx].Jf = uint8(rejectIdx - idx - 1)
	}

	return &unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	}
}
