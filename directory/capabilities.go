// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package directory

import (
	"strconv"
	"strings"
)

// Capabilities is the capability bitflag pair advertised per endpoint, in its
// "standard:extended" wire form.
type Capabilities struct {
	Standard uint32
	Extended uint32
}

// A subset of the standard capability flags.
const (
	CapMobileOnline         uint32 = 0x1
	CapSupportsChunking     uint32 = 0x20000
	CapSupportsDirectIM     uint32 = 0x4000
	CapSupportsWinks        uint32 = 0x8000
	CapSupportsSharedSearch uint32 = 0x10000
	CapSupportsP2PV2        uint32 = 0x10000000
)

// ParseCapabilities parses the "standard:extended" wire form. A missing
// extended half parses as zero.
func ParseCapabilities(s string) (Capabilities, error) {
	var caps Capabilities
	if s == "" {
		return caps, nil
	}
	parts := strings.SplitN(s, ":", 2)
	std, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return caps, err
	}
	caps.Standard = uint32(std)
	if len(parts) == 2 && parts[1] != "" {
		ext, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return caps, err
		}
		caps.Extended = uint32(ext)
	}
	return caps, nil
}

// Has reports whether every given standard flag is set.
func (c Capabilities) Has(flag uint32) bool {
	return c.Standard&flag == flag
}

// String returns the wire form of the capability pair.
func (c Capabilities) String() string {
	return strconv.FormatUint(uint64(c.Standard), 10) + ":" + strconv.FormatUint(uint64(c.Extended), 10)
}
