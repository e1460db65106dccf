package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"
)

// Cipher cache to avoid recreating AES ciphers for the same key
var (
	cipherCache   = make(map[[32]byte]cipher.Block)
	cipherCacheMu sync.RWMutex
)

func getCachedCipher(key []byte) (cipher.Block, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}

	var keyArr [32]byte
	copy(keyArr[:], key)

	cipherCacheMu.RLock()
	block, ok := cipherCache[keyArr]
	cipherCacheMu.RUnlock()
	if ok {
		return block, nil
	}

	cipherCacheMu.Lock()
	defer cipherCacheMu.Unlock()

	// Double-check after acquiring write lock
	if block, ok = cipherCache[keyArr]; ok {
		return block, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	cipherCache[keyArr] = block
	return block, nil
}

// CFBDecrypt decrypts data with AES-256-CFB under the given key and IV.
//
// The TOC region is not necessarily a multiple of the AES block size, so a
// trailing partial block is zero-padded before decryption and the output is
// truncated back to the input length. CFB is a stream mode; the padding never
// influences the plaintext bytes that are kept.
func CFBDecrypt(data, key, iv []byte) ([]byte, error) {
	block, err := getCachedCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", block.BlockSize(), len(iv))
	}

	padded := len(data)
	if rem := padded % block.BlockSize(); rem != 0 {
		padded += block.BlockSize() - rem
	}

	in := make([]byte, padded)
	copy(in, data)

	out := make([]byte, padded)
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(out, in)

	return out[:len(data)], nil
}

// CFBEncrypt is the inverse of CFBDecrypt. The reader core never encrypts;
// this exists so fixtures and round-trip tests can produce protected TOCs.
func CFBEncrypt(data, key, iv []byte) ([]byte, error) {
	block, err := getCachedCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", block.BlockSize(), len(iv))
	}

	padded := len(data)
	if rem := padded % block.BlockSize(); rem != 0 {
		padded += block.BlockSize() - rem
	}

	in := make([]byte, padded)
	copy(in, data)

	out := make([]byte, padded)
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(out, in)

	return out[:len(data)], nil
}

// CTRDecrypt decrypts data with AES-256-CTR under the given key and IV.
// CTR is symmetric, so this also serves as the encrypt direction.
func CTRDecrypt(data, key, iv []byte) ([]byte, error) {
	block, err := getCachedCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", block.BlockSize(), len(iv))
	}

	out := make([]byte, len(data))
	cipher.NewCTR(block, iv).XORKeyStream(out, data)
	return out, nil
}
