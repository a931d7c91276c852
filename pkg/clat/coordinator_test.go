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
	"net/netip"
	"os"
	"testing"

	"github.com/HorizonUI/packages-modules-Connectivity/pkg/bpfmap"
	"github.com/HorizonUI/packages-modules-Connectivity/pkg/context"
	"github.com/HorizonUI/packages-modules-Connectivity/pkg/platform"
)

// fakeDeps is an in-memory stand-in for platform.Dependencies that
// records calls and lets a test fail any one step of the Start
// sequence. The tc methods never fail; filter add/delete calls are
// recorded in tcFiltersAdded/tcFiltersDeled rather than calls.
type fakeDeps struct {
	failStep string
	calls    []string

	ifIndexes  map[string]int
	stoppedPid int

	tcFiltersAdded []string
	tcFiltersDeled []string
}

func newFakeDeps() *fakeDeps {
	return &fakeDeps{
		ifIndexes: map[string]int{"wlan0": 10, "v4-wlan0": 11},
	}
}

func (f *fakeDeps) record(step string) bool {
	f.calls = append(f.calls, step)
	return f.failStep == step
}

func fakeFd() *platform.OwnedFd {
	r, _, _ := os.Pipe()
	return &platform.OwnedFd{File: r}
}

func (f *fakeDeps) InterfaceIndex(name string) (int, error) {
	if f.record("InterfaceIndex:" + name) {
		return 0, errors.New("fake failure")
	}
	return f.ifIndexes[name], nil
}

func (f *fakeDeps) IsEthernet(name string) (bool, error) {
	if f.record("IsEthernet") {
		return false, errors.New("fake failure")
	}
	return true, nil
}

func (f *fakeDeps) CreateTunInterface(name string) (*platform.OwnedFd, error) {
	if f.record("CreateTunInterface") {
		return nil, errors.New("fake failure")
	}
	return fakeFd(), nil
}

func (f *fakeDeps) SelectIPv4Address(seedPrefix string, prefixLen int) (netip.Addr, error) {
	if f.record("SelectIPv4Address") {
		return netip.Addr{}, errors.New("fake failure")
	}
	return netip.MustParseAddr("192.0.0.4"), nil
}

func (f *fakeDeps) GenerateIPv6Address(iface string, v4 netip.Addr, pfx96 netip.Prefix) (netip.Addr, error) {
	if f.record("GenerateIPv6Address") {
		return netip.Addr{}, errors.New("fake failure")
	}
	return netip.MustParseAddr("64:ff9b::1"), nil
}

func (f *fakeDeps) DetectMTU(pfx96 netip.Prefix, ifindex int, mark uint32) (int, error) {
	if f.record("DetectMTU") {
		return 0, errors.New("fake failure")
	}
	return 1500, nil
}

func (f *fakeDeps) OpenPacketSocket() (*platform.OwnedFd, error) {
	if f.record("OpenPacketSocket") {
		return nil, errors.New("fake failure")
	}
	return fakeFd(), nil
}

func (f *fakeDeps) OpenRawSocket6(mark uint32) (*platform.OwnedFd, error) {
	if f.record("OpenRawSocket6") {
		return nil, errors.New("fake failure")
	}
	return fakeFd(), nil
}

func (f *fakeDeps) AddAnycastSetsockopt(fd *platform.OwnedFd, v6 netip.Addr, ifindex int) error {
	if f.record("AddAnycastSetsockopt") {
		return errors.New("fake failure")
	}
	return nil
}

func (f *fakeDeps) ConfigurePacketSocket(fd *platform.OwnedFd, v6 netip.Addr, ifindex int) error {
	if f.record("ConfigurePacketSocket") {
		return errors.New("fake failure")
	}
	return nil
}

func (f *fakeDeps) GetSocketCookie(fd *platform.OwnedFd) (uint64, error) {
	if f.record("GetSocketCookie") {
		return 0, errors.New("fake failure")
	}
	return 42, nil
}

func (f *fakeDeps) StartClatd(tunFd, readSock6, writeSock6 *platform.OwnedFd, iface, pfx96, v4, v6 string) (int, error) {
	if f.record("StartClatd") {
		return 0, errors.New("fake failure")
	}
	return 1234, nil
}

func (f *fakeDeps) StopClatd(pid int) error {
	if f.record("StopClatd") {
		return errors.New("fake failure")
	}
	f.stoppedPid = pid
	return nil
}

func (f *fakeDeps) Netd() platform.NetdClient { return f }

func (f *fakeDeps) InterfaceSetEnableIPv6(iface string, enabled bool) error {
	if f.record("InterfaceSetEnableIPv6") {
		return errors.New("fake failure")
	}
	return nil
}

func (f *fakeDeps) InterfaceSetMTU(iface string, mtu int) error {
	if f.record("InterfaceSetMTU") {
		return errors.New("fake failure")
	}
	return nil
}

func (f *fakeDeps) InterfaceSetCfg(iface string, v4 netip.Addr, prefixLen int) error {
	if f.record("InterfaceSetCfg") {
		return errors.New("fake failure")
	}
	return nil
}

func (f *fakeDeps) BpfIngress6Map() (*bpfmap.Ingress6Map, error) { return nil, nil }
func (f *fakeDeps) BpfEgress4Map() (*bpfmap.Egress4Map, error)   { return nil, nil }
func (f *fakeDeps) BpfCookieTagMap() (*bpfmap.CookieTagMap, error) { return nil, nil }

func (f *fakeDeps) TcQdiscAddClsact(ifindex int) error {
	f.record("TcQdiscAddClsact")
	return nil
}

func (f *fakeDeps) TcFilterAddBpf(ifindex int, ingress bool, proto uint16, priority uint16, progPath string) error {
	f.tcFiltersAdded = append(f.tcFiltersAdded, progPath)
	return nil
}

func (f *fakeDeps) TcFilterDel(ifindex int, ingress bool, proto uint16, priority uint16) error {
	f.tcFiltersDeled = append(f.tcFiltersDeled, progPath(ingress))
	return nil
}

func progPath(ingress bool) string {
	if ingress {
		return "ingress"
	}
	return "egress"
}

func testPrefix(t *testing.T) netip.Prefix {
	t.Helper()
	return netip.MustParsePrefix("64:ff9b::/96")
}

func TestCoordinatorStartStop(t *testing.T) {
	deps := newFakeDeps()
	c, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	v6, err := c.Start(ctx, "wlan0", 100, testPrefix(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v6 != netip.MustParseAddr("64:ff9b::1") {
		t.Errorf("Start returned v6 = %v, want 64:ff9b::1", v6)
	}
	if !c.Running() {
		t.Error("expected coordinator to be running after Start")
	}

	if _, err := c.Start(ctx, "wlan0", 100, testPrefix(t)); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start error = %v, want ErrAlreadyRunning", err)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.Running() {
		t.Error("expected coordinator to not be running after Stop")
	}
	if deps.stoppedPid != 1234 {
		t.Errorf("stopped pid = %d, want 1234", deps.stoppedPid)
	}

	if err := c.Stop(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop error = %v, want ErrNotRunning", err)
	}
}

func TestCoordinatorStartRejectsWrongPrefixLength(t *testing.T) {
	c, err := New(newFakeDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Start(context.Background(), "wlan0", 0, netip.MustParsePrefix("64:ff9b::/64"))
	if !errors.Is(err, ErrInvalidPrefixLength) {
		t.Errorf("Start with /64 error = %v, want ErrInvalidPrefixLength", err)
	}
}

func TestCoordinatorStartUnwindsOnLateFailure(t *testing.T) {
	deps := newFakeDeps()
	deps.failStep = "StartClatd"
	c, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Start(context.Background(), "wlan0", 100, testPrefix(t))
	if err == nil {
		t.Fatal("expected Start to fail")
	}
	if c.Running() {
		t.Error("expected coordinator to not be running after a failed Start")
	}
}

func TestCoordinatorStartFailsOnInterfaceSetCfgFailure(t *testing.T) {
	deps := newFakeDeps()
	deps.failStep = "InterfaceSetCfg"
	c, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Start(context.Background(), "wlan0", 100, testPrefix(t))
	if err == nil {
		t.Fatal("expected Start to fail")
	}
	if c.Running() {
		t.Error("expected coordinator to not be running after a failed Start")
	}
}
