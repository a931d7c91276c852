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
	"os"

	"github.com/jsimonetti/rtnetlink"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// netdClient is the local stand-in for the connectivity-service
// configuration surface: interface enable/disable, MTU, and address
// assignment. A real connectivity service already owns these
// operations on the host; this module implements them directly since
// it has no such collaborator to call into.
type netdClient struct{}

// Netd returns the coordinator's NetdClient implementation.
func (d *realDependencies) Netd() NetdClient { return netdClient{} }

// InterfaceSetEnableIPv6 toggles IPv6 on iface via the standard
// per-interface sysctl.
func (netdClient) InterfaceSetEnableIPv6(iface string, enabled bool) error {
	disable := "1"
	if enabled {
		disable = "0"
	}
	path := fmt.Sprintf("/proc/sys/net/ipv6/conf/%s/disable_ipv6", iface)
	if err := os.WriteFile(path, []byte(disable), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// InterfaceSetMTU sets iface's MTU.
func (netdClient) InterfaceSetMTU(iface string, mtu int) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("get link %s: %w", iface, err)
	}
	if err := netlink.LinkSetMTU(link, mtu); err != nil {
		return fmt.Errorf("set mtu on %s: %w", iface, err)
	}
	return nil
}

// InterfaceSetCfg assigns v4/prefixLen to iface and brings it up.
func (netdClient) InterfaceSetCfg(iface string, v4 netip.Addr, prefixLen int) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("get link %s: %w", iface, err)
	}

	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return fmt.Errorf("dial rtnetlink: %w", err)
	}
	defer conn.Close()

	req := &rtnetlink.AddressMessage{
		Family:       unix.AF_INET,
		PrefixLength: uint8(prefixLen),
		Scope:        unix.RT_SCOPE_UNIVERSE,
		Index:        uint32(link.Attrs().Index),
		Attributes: &rtnetlink.AddressAttributes{
			Address: v4.AsSlice(),
			Local:   v4.AsSlice(),
		},
	}
	if err := conn.Address.New(req); err != nil {
		return fmt.Errorf("add address to %s: %w", iface, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %s up: %w", iface, err)
	}
	return nil
}
