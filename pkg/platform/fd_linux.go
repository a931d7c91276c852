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

	"golang.org/x/sys/unix"
)

// dupFd duplicates fd, clearing the close-on-exec flag isn't needed
// here since ExtraFiles always clears it on the child's copy; the dup
// exists so the coordinator and the library that created the original
// fd (tun.Device, net.Conn, etc.) have independent fds to close.
func dupFd(fd int) (int, error) {
	newFd, err := unix.Dup(fd)
	if err != nil {
		return -1, fmt.Errorf("dup: %w", err)
	}
	return newFd, nil
}
