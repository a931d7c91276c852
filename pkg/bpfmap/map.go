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

// Package bpfmap wraps the pinned BPF maps the CLAT fast path reads
// and writes: per-flow translation rules and the socket-cookie
// accounting tag.
package bpfmap

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
)

func init() {
	// Kernels older than 5.11 enforce RLIMIT_MEMLOCK against BPF map
	// and program loads; lift it once for the process.
	if err := rlimit.RemoveMemlock(); err != nil {
		// Not fatal: newer kernels don't need this, and the first real
		// map open will fail loudly if it actually mattered.
		_ = err
	}
}

// ErrNotPinned is returned by the Open* constructors when the pinned
// map object does not exist at its fixed path. Callers treat this as
// "BPF fast path unavailable", not a fatal error.
var ErrNotPinned = errors.New("bpfmap: pinned map not found")

// Map is a typed view over a pinned *ebpf.Map whose keys and values are
// fixed-layout structs matching the kernel-side definitions.
type Map[K, V any] struct {
	m *ebpf.Map
}

func open[K, V any](path string) (*Map[K, V], error) {
	m, err := ebpf.LoadPinnedMap(path, nil)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotPinned
		}
		return nil, fmt.Errorf("load pinned map %s: %w", path, err)
	}
	return &Map[K, V]{m: m}, nil
}

// Insert adds key/value, failing if key already exists. This preserves
// any counters the kernel already associates with an existing entry.
func (m *Map[K, V]) Insert(key K, value V) error {
	if err := m.m.Update(&key, &value, ebpf.UpdateNoExist); err != nil {
		if errors.Is(err, ebpf.ErrKeyExist) {
			return fmt.Errorf("insert entry: %w", ErrKeyExists)
		}
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// Delete removes key. It is not an error for key to be absent.
func (m *Map[K, V]) Delete(key K) error {
	if err := m.m.Delete(&key); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return nil
		}
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// ErrKeyExists is returned by Insert when key is already present.
var ErrKeyExists = errors.New("bpfmap: key already exists")

// Each calls fn for every key/value pair currently in the map.
func (m *Map[K, V]) Each(fn func(key K, value V)) error {
	var key K
	var value V
	iter := m.m.Iterate()
	for iter.Next(&key, &value) {
		fn(key, value)
	}
	return iter.Err()
}

// IsEmpty reports whether the map currently has no entries.
func (m *Map[K, V]) IsEmpty() (bool, error) {
	empty := true
	err := m.Each(func(K, V) { empty = false })
	return empty, err
}

// Count returns the number of entries currently in the map.
func (m *Map[K, V]) Count() (int, error) {
	n := 0
	err := m.Each(func(K, V) { n++ })
	return n, err
}

// DumpRaw writes one "base64(key),base64(value)" line per entry to w,
// matching the diagnostic dump format used elsewhere for these maps.
func (m *Map[K, V]) DumpRaw(w io.Writer) error {
	var outerErr error
	err := m.Each(func(key K, value V) {
		kb, err := encodeFixed(key)
		if err != nil {
			outerErr = err
			return
		}
		vb, err := encodeFixed(value)
		if err != nil {
			outerErr = err
			return
		}
		fmt.Fprintf(w, "%s,%s\n", base64.StdEncoding.EncodeToString(kb), base64.StdEncoding.EncodeToString(vb))
	})
	if err != nil {
		return err
	}
	return outerErr
}

// Close releases the underlying map fd.
func (m *Map[K, V]) Close() error {
	return m.m.Close()
}

func encodeFixed(v any) ([]byte, error) {
	buf := make([]byte, 0, 64)
	w := &sliceWriter{buf: buf}
	if err := binary.Write(w, binary.NativeEndian, v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return w.buf, nil
}

type sliceWriter struct{ buf []byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}
