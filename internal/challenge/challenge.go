// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package challenge computes answers to the server's periodic client
// verification challenges.
package challenge // import "mellium.im/msnp/internal/challenge"

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// ProductID is the client identity sent back with every challenge answer.
const ProductID = "PROD0119GSJUC$18"

const productKey = "ILTXC!4IXB5FB*PX"

const (
	challengeMagic   = 0x0E79A9C1
	challengeModulus = 0x7FFFFFFF
)

// Response computes the 32 character hexadecimal answer to a challenge
// string.
//
// The answer mixes an MD5 digest of the challenge and the product key with
// the challenge text itself through a pair of modular hash chains, then
// folds the chain outputs back into the digest.
func Response(chl string) string {
	digest := md5.Sum([]byte(chl + productKey))

	var md5Ints [4]uint64
	for i := range md5Ints {
		md5Ints[i] = uint64(binary.LittleEndian.Uint32(digest[i*4:])) & challengeModulus
	}

	data := []byte(chl + ProductID)
	for len(data)%8 != 0 {
		data = append(data, '0')
	}

	var high, low uint64
	for i := 0; i < len(data)/4-1; i += 2 {
		temp := uint64(binary.LittleEndian.Uint32(data[i*4:]))
		temp = (challengeMagic * temp) % challengeModulus
		temp += high
		temp = (md5Ints[0]*temp + md5Ints[1]) % challengeModulus

		high = uint64(binary.LittleEndian.Uint32(data[(i+1)*4:]))
		high = (high + temp) % challengeModulus
		high = (md5Ints[2]*high + md5Ints[3]) % challengeModulus

		low += high + temp
	}
	high = (high + md5Ints[1]) % challengeModulus
	low = (low + md5Ints[3]) % challengeModulus

	key := low<<32 | high
	p1 := bits.ReverseBytes64(binary.LittleEndian.Uint64(digest[0:8]) ^ key)
	p2 := bits.ReverseBytes64(binary.LittleEndian.Uint64(digest[8:16]) ^ key)
	return fmt.Sprintf("%016x%016x", p1, p2)
}
