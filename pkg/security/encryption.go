package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// IVSize is the CBC initialization vector length, one AES block.
const IVSize = aes.BlockSize

const tagSize = sha256.Size

var (
	ErrInvalidKeySize = errors.New("invalid key size")
	ErrEncryption     = errors.New("encryption failed")
	ErrDecryption     = errors.New("decryption failed")
)

// Sealed is an encrypted payload ready for storage. The IV is not secret.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
}

// Codec encrypts JSON-serializable payloads at rest.
type Codec interface {
	Encrypt(payload any) (*Sealed, error)
	Decrypt(ciphertext, iv []byte, out any) error
	Seal(payload any) (ciphertext, iv string, err error)
	Open(ciphertext, iv string, out any) error
}

// NewAESCodec builds an AES-256-CBC codec with an HMAC-SHA256 tag over iv||ciphertext.
func NewAESCodec(keys *Keyring) (Codec, error) {
	if keys == nil || len(keys.encKey) != 32 || len(keys.macKey) != 32 {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(keys.encKey)
	if err != nil {
		return nil, ErrInvalidKeySize
	}

	return &cbcCodec{
		block:  block,
		macKey: keys.macKey,
		rand:   rand.Reader,
	}, nil
}

type cbcCodec struct {
	block  cipher.Block
	macKey []byte
	rand   io.Reader
}

func (c *cbcCodec) Encrypt(payload any) (*Sealed, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, ErrEncryption
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded), len(padded)+tagSize)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, padded)

	return &Sealed{
		Ciphertext: append(ciphertext, c.tag(iv, ciphertext)...),
		IV:         iv,
	}, nil
}

func (c *cbcCodec) Decrypt(ciphertext, iv []byte, out any) error {
	if len(iv) != IVSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, IVSize, len(iv))
	}
	if len(ciphertext) < aes.BlockSize+tagSize {
		return fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	body, tag := ciphertext[:len(ciphertext)-tagSize], ciphertext[len(ciphertext)-tagSize:]
	if len(body)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext is not block aligned", ErrDecryption)
	}
	if !hmac.Equal(tag, c.tag(iv, body)) {
		return fmt.Errorf("%w: authentication failed", ErrDecryption)
	}

	plaintext := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, body)

	plaintext, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: payload is not valid json", ErrDecryption)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after payload", ErrDecryption)
	}
	return nil
}

func (c *cbcCodec) Seal(payload any) (string, string, error) {
	sealed, err := c.Encrypt(payload)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(sealed.Ciphertext),
		base64.StdEncoding.EncodeToString(sealed.IV), nil
}

func (c *cbcCodec) Open(ciphertext, iv string, out any) error {
	rawCT, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return fmt.Errorf("%w: ciphertext encoding", ErrDecryption)
	}
	rawIV, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return fmt.Errorf("%w: iv encoding", ErrDecryption)
	}
	return c.Decrypt(rawCT, rawIV, out)
}

func (c *cbcCodec) tag(iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
		}
	}
	return data[:len(data)-n], nil
}
