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
	"testing"
)

func TestFwmark(t *testing.T) {
	cases := []struct {
		netID uint32
		want  uint32
	}{
		{0, 1<<16 | 1<<17 | 3<<18},
		{100, 100 | 1<<16 | 1<<17 | 3<<18},
		{0xffff, 0xffff | 1<<16 | 1<<17 | 3<<18},
		// Upper bits of net_id beyond the low 16 are discarded.
		{0x1_1234, 0x1234 | 1<<16 | 1<<17 | 3<<18},
	}
	for _, c := range cases {
		if got := Fwmark(c.netID); got != c.want {
			t.Errorf("Fwmark(%d) = %#x, want %#x", c.netID, got, c.want)
		}
	}
}

func TestAdjustMTU(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{1500, 1500 - MTUDelta},
		{100, IPv6MinMTU - MTUDelta},
		{9000, ClatMaxMTU - MTUDelta},
		{IPv6MinMTU, IPv6MinMTU - MTUDelta},
		{ClatMaxMTU, ClatMaxMTU - MTUDelta},
	}
	for _, c := range cases {
		if got := AdjustMTU(c.in); got != c.want {
			t.Errorf("AdjustMTU(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseNAT64Prefix(t *testing.T) {
	if _, err := ParseNAT64Prefix("64:ff9b::/96"); err != nil {
		t.Errorf("unexpected error for valid /96: %v", err)
	}
	_, err := ParseNAT64Prefix("64:ff9b::/64")
	if !errors.Is(err, ErrInvalidPrefixLength) {
		t.Errorf("ParseNAT64Prefix(/64) error = %v, want ErrInvalidPrefixLength", err)
	}
	if _, err := ParseNAT64Prefix("not-a-prefix"); err == nil {
		t.Error("expected error for unparsable prefix")
	}
}
