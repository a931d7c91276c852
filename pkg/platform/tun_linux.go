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
	"os"

	"golang.zx2c4.com/wireguard/tun"

	"github.com/HorizonUI/packages-modules-Connectivity/pkg/util"
)

// CreateTunInterface creates a TUN device named name (the kernel may
// rename it; the coordinator always re-resolves the ifindex by the
// name that was requested, since clatd's "v4-<iface>" naming is never
// ambiguous on a real host) and hands back the control fd clatd will
// dup for its own use.
//
// Unlike a WireGuard device, nothing here starts a packet-processing
// loop over the TUN: clatd itself reads and writes it directly via the
// duplicated fd, so only the raw creation primitive is needed.
func (d *realDependencies) CreateTunInterface(name string) (*OwnedFd, error) {
	// The tun driver is usually built in on Android/mobile kernels but
	// not always on a generic Linux host; load it if absent and ignore
	// the error if the kernel doesn't support modules at all.
	_ = util.Modprobe("tun", "")
	dev, err := tun.CreateTUN(name, int(DefaultTunMTU))
	if err != nil {
		return nil, fmt.Errorf("create tun %s: %w", name, err)
	}
	// The tun package hands back the device's own control file; dup it
	// so the coordinator's OwnedFd and clatd's inherited copy each have
	// independent lifetimes once clatd is exec'd.
	raw := dev.File()
	dup, err := dupFd(int(raw.Fd()))
	dev.Close()
	if err != nil {
		return nil, fmt.Errorf("dup tun fd: %w", err)
	}
	return &OwnedFd{File: os.NewFile(uintptr(dup), name)}, nil
}

// DefaultTunMTU is the MTU the TUN device is created with; the
// coordinator sets the real MTU afterward via Netd.InterfaceSetMTU.
const DefaultTunMTU = 1500
