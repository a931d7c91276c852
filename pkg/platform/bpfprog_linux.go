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

	"github.com/cilium/ebpf"
)

// loadPinnedProgram loads the already-loaded, pinned tc classifier
// program at path. These programs are loaded and pinned once, outside
// this process (by the same mechanism that pins the forwarding maps in
// pkg/bpfmap); the coordinator only ever attaches them by path.
func loadPinnedProgram(path string) (*ebpf.Program, error) {
	prog, err := ebpf.LoadPinnedProgram(path, nil)
	if err != nil {
		return nil, fmt.Errorf("load pinned program: %w", err)
	}
	return prog, nil
}
