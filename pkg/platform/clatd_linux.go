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
	"os/exec"
	"syscall"
)

// ClatdPath is the external translation daemon this coordinator
// spawns and supervises. It is resolved from PATH at start time so a
// test build or container image can ship a stand-in.
var ClatdPath = "clatd"

// StartClatd execs clatd, handing it the three fds it needs to read
// and write the TUN device and the pair of raw sockets, and returns
// its pid. clatd dup2()s each inherited fd on startup, so the parent's
// copies remain independently closeable.
func (d *realDependencies) StartClatd(tunFd, readSock6, writeSock6 *OwnedFd, iface, pfx96, v4, v6 string) (int, error) {
	cmd := exec.Command(ClatdPath,
		"-i", iface,
		"-p", pfx96,
		"-4", v4,
		"-6", v6,
	)
	cmd.ExtraFiles = []*os.File{tunFd.File, readSock6.File, writeSock6.File}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start clatd: %w", err)
	}
	return cmd.Process.Pid, nil
}

// StopClatd sends SIGTERM to pid and does not wait for it to exit;
// clatd has no shared state with the coordinator beyond the fds it was
// handed, so the coordinator's own teardown does not depend on it.
func (d *realDependencies) StopClatd(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("kill clatd pid %d: %w", pid, err)
	}
	return nil
}
