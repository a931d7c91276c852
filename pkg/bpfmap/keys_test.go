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

package bpfmap

import (
	"bytes"
	"testing"
)

func TestEncodeFixedLayout(t *testing.T) {
	key := Ingress6Key{
		Iif:    7,
		Pfx96:  [16]byte{0x20, 0x01, 0x0d, 0xb8},
		Local6: [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	}
	b, err := encodeFixed(key)
	if err != nil {
		t.Fatalf("encodeFixed: %v", err)
	}
	// uint32 + [16]byte + [16]byte, no implicit padding expected since
	// every field is already 4-byte aligned.
	want := 4 + 16 + 16
	if len(b) != want {
		t.Errorf("encoded length = %d, want %d", len(b), want)
	}
	// Byte-array fields must be carried through byte-for-byte, not
	// reinterpreted as integers.
	if !bytes.Equal(b[4:20], key.Pfx96[:]) {
		t.Errorf("encoded pfx96 = %x, want %x", b[4:20], key.Pfx96[:])
	}
	if !bytes.Equal(b[20:36], key.Local6[:]) {
		t.Errorf("encoded local6 = %x, want %x", b[20:36], key.Local6[:])
	}
}

func TestPinnedPaths(t *testing.T) {
	if IngressProgPath(true) == IngressProgPath(false) {
		t.Error("ethernet and raw-ip ingress programs must have distinct pinned paths")
	}
}
