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
	"strings"

	"github.com/vishvananda/netlink"
)

// TcQdiscAddClsact adds a clsact qdisc to ifindex, the parent classic
// tc needs before bpf filters can be attached in either direction. It
// is not an error if the qdisc already exists.
func (d *realDependencies) TcQdiscAddClsact(ifindex int) error {
	qdisc := &netlink.GenericQdisc{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: ifindex,
			Handle:    netlink.MakeHandle(0xffff, 0),
			Parent:    netlink.HANDLE_CLSACT,
		},
		QdiscType: "clsact",
	}
	if err := netlink.QdiscAdd(qdisc); err != nil {
		if strings.Contains(err.Error(), "exists") {
			return nil
		}
		return fmt.Errorf("add clsact qdisc: %w", err)
	}
	return nil
}

// TcFilterAddBpf attaches progPath as a direct-action classifier on
// ifindex, in the given direction, for the given L3 protocol, at
// priority.
func (d *realDependencies) TcFilterAddBpf(ifindex int, ingress bool, proto uint16, priority uint16, progPath string) error {
	prog, err := loadPinnedProgram(progPath)
	if err != nil {
		return fmt.Errorf("load pinned program %s: %w", progPath, err)
	}
	parent := uint32(netlink.HANDLE_MIN_EGRESS)
	if ingress {
		parent = netlink.HANDLE_MIN_INGRESS
	}
	filter := &netlink.BpfFilter{
		FilterAttrs: netlink.FilterAttrs{
			LinkIndex: ifindex,
			Parent:    parent,
			Handle:    netlink.MakeHandle(0, 1),
			Protocol:  proto,
			Priority:  priority,
		},
		Fd:           prog.FD(),
		Name:         progName(progPath),
		DirectAction: true,
	}
	if err := netlink.FilterAdd(filter); err != nil {
		if strings.Contains(err.Error(), "exists") {
			if err := netlink.FilterReplace(filter); err != nil {
				return fmt.Errorf("replace bpf filter: %w", err)
			}
			return nil
		}
		return fmt.Errorf("add bpf filter: %w", err)
	}
	return nil
}

// TcFilterDel removes the classifier installed by TcFilterAddBpf at
// priority, in the given direction, for the given protocol.
func (d *realDependencies) TcFilterDel(ifindex int, ingress bool, proto uint16, priority uint16) error {
	parent := uint32(netlink.HANDLE_MIN_EGRESS)
	if ingress {
		parent = netlink.HANDLE_MIN_INGRESS
	}
	filter := &netlink.BpfFilter{
		FilterAttrs: netlink.FilterAttrs{
			LinkIndex: ifindex,
			Parent:    parent,
			Handle:    netlink.MakeHandle(0, 1),
			Protocol:  proto,
			Priority:  priority,
		},
	}
	if err := netlink.FilterDel(filter); err != nil {
		if strings.Contains(err.Error(), "no such file") {
			return nil
		}
		return fmt.Errorf("delete bpf filter: %w", err)
	}
	return nil
}

func progName(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
