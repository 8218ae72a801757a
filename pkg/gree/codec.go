package gree

import (
	"crypto/aes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenericKey is the publicly known key every unit ships with. It is
// valid only for scan and bind traffic; all other exchanges use the
// per-device key obtained from binding.
const GenericKey = "a3K8Bx%2r8Y7#xDh"

// encryptPayload serializes v to JSON, encrypts it with AES-128-ECB and
// PKCS#7 padding, and returns the base64 text carried in the "pack"
// field of the wire envelope.
func encryptPayload(v any, key string) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("invalid cipher key: %w", err)
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// decryptPayload is the inverse of encryptPayload. Malformed base64,
// ciphertext that is not block aligned, invalid padding and plaintext
// that fails to parse all surface as ErrDecryption; a wrong key never
// yields a silent empty result.
func decryptPayload(text, key string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext length %d not block aligned", ErrDecryption, len(raw))
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	plain := make([]byte, len(raw))
	for i := 0; i < len(raw); i += aes.BlockSize {
		block.Decrypt(plain[i:i+aes.BlockSize], raw[i:i+aes.BlockSize])
	}

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}
