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
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/vishvananda/netlink"
)

// InterfaceIndex returns the ifindex of name, or InvalidIfindex if it
// does not exist.
func (d *realDependencies) InterfaceIndex(name string) (int, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		if isNoSuchInterfaceErr(err) {
			return InvalidIfindex, nil
		}
		return InvalidIfindex, fmt.Errorf("get interface %s: %w", name, err)
	}
	return iface.Index, nil
}

// IsEthernet reports whether name uses Ethernet framing by inspecting
// its link layer type, distinguishing it from raw-IP interfaces such
// as cellular rmnet devices.
func (d *realDependencies) IsEthernet(name string) (bool, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return false, fmt.Errorf("get link %s: %w", name, err)
	}
	switch link.Attrs().EncapType {
	case "ether":
		return true, nil
	case "rawip", "none":
		return false, nil
	default:
		// Treat anything unrecognized as raw IP, matching clatd's own
		// conservative default when link layer detection is ambiguous.
		return false, nil
	}
}

func isNoSuchInterfaceErr(err error) bool {
	opError := &net.OpError{}
	if errors.As(err, &opError) {
		return strings.Contains(opError.Unwrap().Error(), "no such network interface")
	}
	return strings.Contains(err.Error(), "no such network interface")
}
