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

	"github.com/HorizonUI/packages-modules-Connectivity/pkg/bpfmap"
)

// realDependencies is the Linux-backed implementation of Dependencies.
type realDependencies struct{}

// NewDependencies returns the Linux implementation of Dependencies,
// backed by netlink, raw sockets, pinned BPF objects, and an external
// clatd process.
func NewDependencies() Dependencies {
	return &realDependencies{}
}

func (d *realDependencies) BpfIngress6Map() (*bpfmap.Ingress6Map, error) {
	m, err := bpfmap.OpenIngress6Map()
	if errors.Is(err, bpfmap.ErrNotPinned) {
		return nil, nil
	}
	return m, err
}

func (d *realDependencies) BpfEgress4Map() (*bpfmap.Egress4Map, error) {
	m, err := bpfmap.OpenEgress4Map()
	if errors.Is(err, bpfmap.ErrNotPinned) {
		return nil, nil
	}
	return m, err
}

func (d *realDependencies) BpfCookieTagMap() (*bpfmap.CookieTagMap, error) {
	m, err := bpfmap.OpenCookieTagMap()
	if errors.Is(err, bpfmap.ErrNotPinned) {
		return nil, nil
	}
	return m, err
}
