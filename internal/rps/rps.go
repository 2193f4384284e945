// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package rps computes the proof blob that answers a single sign-on
// challenge.
//
// The server sends a nonce; the client proves possession of the ticket's
// binary secret by returning a structure holding an HMAC-SHA1 of the nonce
// and a triple-DES encryption of it, both under keys derived from the secret.
package rps

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
)

const (
	hashMagic  = "WS-SecureConversationSESSION KEY HASH"
	cryptMagic = "WS-SecureConversationSESSION KEY ENCRYPTION"

	structHeaderSize = 28
	cryptMode        = 1
	cipherTypeTDES   = 0x6603
	hashTypeSHA1     = 0x8004
	ivLen            = 8
	hashLen          = sha1.Size
)

// Response computes the base64 proof blob for the given base64 ticket secret
// and challenge nonce.
func Response(secret, nonce string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", err
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	return response(key, nonce, iv)
}

func response(key []byte, nonce string, iv []byte) (string, error) {
	hashKey := derive(key, hashMagic)
	cryptKey := derive(key, cryptMagic)

	mac := hmac.New(sha1.New, hashKey)
	mac.Write([]byte(nonce))
	hash := mac.Sum(nil)

	// The plaintext is the nonce padded to a block boundary; the usual nonce
	// is 32 bytes, which yields the canonical full block of 0x08 bytes.
	padLen := des.BlockSize - len(nonce)%des.BlockSize
	plain := make([]byte, len(nonce)+padLen)
	copy(plain, nonce)
	for i := len(nonce); i < len(plain); i++ {
		plain[i] = byte(padLen)
	}
	block, err := des.NewTripleDESCipher(cryptKey)
	if err != nil {
		return "", err
	}
	encrypted := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, plain)

	blob := make([]byte, 0, structHeaderSize+len(iv)+len(hash)+len(encrypted))
	var header [structHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:], structHeaderSize)
	binary.LittleEndian.PutUint32(header[4:], cryptMode)
	binary.LittleEndian.PutUint32(header[8:], cipherTypeTDES)
	binary.LittleEndian.PutUint32(header[12:], hashTypeSHA1)
	binary.LittleEndian.PutUint32(header[16:], ivLen)
	binary.LittleEndian.PutUint32(header[20:], hashLen)
	binary.LittleEndian.PutUint32(header[24:], uint32(len(encrypted)))
	blob = append(blob, header[:]...)
	blob = append(blob, iv...)
	blob = append(blob, hash...)
	blob = append(blob, encrypted...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// derive expands the ticket secret into a 24 byte key bound to the given
// magic string.
func derive(key []byte, magic string) []byte {
	m := []byte(magic)
	hash1 := hmacSHA1(key, m)
	hash2 := hmacSHA1(key, append(append([]byte{}, hash1...), m...))
	hash3 := hmacSHA1(key, hash1)
	hash4 := hmacSHA1(key, append(append([]byte{}, hash3...), m...))
	return append(hash2, hash4[:4]...)
}

func hmacSHA1(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
