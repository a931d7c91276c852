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
	"fmt"
	"io"

	"github.com/HorizonUI/packages-modules-Connectivity/pkg/bpfmap"
)

// RawMapName selects which pinned map DumpRawMap dumps.
type RawMapName string

const (
	RawMapEgress4  RawMapName = "egress4"
	RawMapIngress6 RawMapName = "ingress6"
)

// Dump writes a human-readable summary of the coordinator's state to w,
// matching the shape of a connectivity-service diagnostics dump.
func (c *Coordinator) Dump(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collectForwardingRuleCounts()

	iw := &indentingWriter{w: w}
	if c.tracker == nil {
		fmt.Fprintln(iw, "<not started>")
		return nil
	}
	fmt.Fprintln(iw, c.tracker.String())
	fmt.Fprintln(iw, "Forwarding rules:")
	iw.indent++
	defer func() { iw.indent-- }()

	fmt.Fprintln(iw, "Ingress6:")
	if err := c.dumpMapEntries(iw, RawMapIngress6); err != nil {
		return err
	}
	fmt.Fprintln(iw, "Egress4:")
	return c.dumpMapEntries(iw, RawMapEgress4)
}

func (c *Coordinator) dumpMapEntries(iw *indentingWriter, which RawMapName) error {
	iw.indent++
	defer func() { iw.indent-- }()

	switch which {
	case RawMapIngress6:
		if c.ingress6Map == nil {
			fmt.Fprintln(iw, "<empty>")
			return nil
		}
		empty, err := c.ingress6Map.IsEmpty()
		if err != nil {
			return err
		}
		if empty {
			fmt.Fprintln(iw, "<empty>")
			return nil
		}
		return c.ingress6Map.Each(func(k bpfmap.Ingress6Key, v bpfmap.Ingress6Value) {
			fmt.Fprintf(iw, "iif=%d pfx96=%x local6=%x -> oif=%d local4=%d\n", k.Iif, k.Pfx96, k.Local6, v.OIf, v.Local4)
		})
	case RawMapEgress4:
		if c.egress4Map == nil {
			fmt.Fprintln(iw, "<empty>")
			return nil
		}
		empty, err := c.egress4Map.IsEmpty()
		if err != nil {
			return err
		}
		if empty {
			fmt.Fprintln(iw, "<empty>")
			return nil
		}
		return c.egress4Map.Each(func(k bpfmap.Egress4Key, v bpfmap.Egress4Value) {
			fmt.Fprintf(iw, "iif=%d local4=%d -> oif=%d local6=%x pfx96=%x\n", k.Iif, k.Local4, v.OIf, v.Local6, v.Pfx96)
		})
	}
	return nil
}

// DumpRawMap writes base64-encoded key,value pairs of the named pinned
// map to w, one entry per line — the raw counterpart to Dump's
// human-readable summary.
func (c *Coordinator) DumpRawMap(w io.Writer, which RawMapName) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch which {
	case RawMapIngress6:
		if c.ingress6Map == nil {
			return nil
		}
		return c.ingress6Map.DumpRaw(w)
	case RawMapEgress4:
		if c.egress4Map == nil {
			return nil
		}
		return c.egress4Map.DumpRaw(w)
	default:
		return fmt.Errorf("clat: unknown map %q", which)
	}
}

type indentingWriter struct {
	w      io.Writer
	indent int
}

func (iw *indentingWriter) Write(p []byte) (int, error) {
	if iw.indent > 0 {
		prefix := make([]byte, iw.indent*2)
		for i := range prefix {
			prefix[i] = ' '
		}
		if _, err := iw.w.Write(prefix); err != nil {
			return 0, err
		}
	}
	return iw.w.Write(p)
}
