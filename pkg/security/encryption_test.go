package security

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCodec(t *testing.T) Codec {
	t.Helper()
	keys, err := KeyringFromHex(testKeyHex)
	require.NoError(t, err)
	codec, err := NewAESCodec(keys)
	require.NoError(t, err)
	return codec
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	payloads := []map[string]any{
		{"type": "vitals", "vitals": map[string]any{"bp": "120/80", "pulse": 72}},
		{"type": "diagnosis", "diagnosis": "flu", "summary": "ok", "instructions": "rest"},
		{},
	}

	for _, p := range payloads {
		sealed, err := codec.Encrypt(p)
		require.NoError(t, err)
		assert.Len(t, sealed.IV, IVSize)

		var out map[string]any
		require.NoError(t, codec.Decrypt(sealed.Ciphertext, sealed.IV, &out))

		want, _ := json.Marshal(p)
		got, _ := json.Marshal(out)
		assert.JSONEq(t, string(want), string(got))
	}
}

func TestCodec_FreshIVPerCall(t *testing.T) {
	codec := newTestCodec(t)
	payload := map[string]any{"type": "vitals", "summary": "same"}

	ivs := make(map[string]struct{})
	cts := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		sealed, err := codec.Encrypt(payload)
		require.NoError(t, err)
		ivs[string(sealed.IV)] = struct{}{}
		cts[string(sealed.Ciphertext)] = struct{}{}
	}

	assert.Len(t, ivs, 200)
	assert.Len(t, cts, 200)
}

func TestCodec_DecryptFailures(t *testing.T) {
	codec := newTestCodec(t)
	sealed, err := codec.Encrypt(map[string]any{"type": "lab", "summary": "values within range"})
	require.NoError(t, err)

	flipped := append([]byte(nil), sealed.Ciphertext...)
	flipped[3] ^= 0xff

	otherIV := append([]byte(nil), sealed.IV...)
	otherIV[0] ^= 0x01

	tests := []struct {
		name       string
		ciphertext []byte
		iv         []byte
	}{
		{"short iv", sealed.Ciphertext, sealed.IV[:8]},
		{"long iv", sealed.Ciphertext, append(append([]byte(nil), sealed.IV...), 0)},
		{"empty iv", sealed.Ciphertext, nil},
		{"truncated ciphertext", sealed.Ciphertext[:len(sealed.Ciphertext)-5], sealed.IV},
		{"ciphertext missing a block", sealed.Ciphertext[16:], sealed.IV},
		{"corrupted ciphertext", flipped, sealed.IV},
		{"mismatched iv", sealed.Ciphertext, otherIV},
		{"empty ciphertext", nil, sealed.IV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := codec.Decrypt(tt.ciphertext, tt.iv, &out)
			assert.ErrorIs(t, err, ErrDecryption)
			assert.Nil(t, out)
		})
	}
}

func TestCodec_SealOpen(t *testing.T) {
	codec := newTestCodec(t)

	ct, iv, err := codec.Seal(map[string]any{"summary": "stable"})
	require.NoError(t, err)

	rawIV, err := base64.StdEncoding.DecodeString(iv)
	require.NoError(t, err)
	assert.Len(t, rawIV, IVSize)

	var out map[string]any
	require.NoError(t, codec.Open(ct, iv, &out))
	assert.Equal(t, "stable", out["summary"])

	assert.ErrorIs(t, codec.Open("%%%not-base64", iv, &out), ErrDecryption)
	assert.ErrorIs(t, codec.Open(ct, "AAAA", &out), ErrDecryption)
}

func TestCodec_DifferentKeysDoNotOpen(t *testing.T) {
	a := newTestCodec(t)

	keys, err := DeriveKeyring("correct horse battery staple", "0123456789abcdef", Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})
	require.NoError(t, err)
	b, err := NewAESCodec(keys)
	require.NoError(t, err)

	ct, iv, err := a.Seal(map[string]any{"summary": "x"})
	require.NoError(t, err)

	var out map[string]any
	assert.ErrorIs(t, b.Open(ct, iv, &out), ErrDecryption)
}

func TestDeriveKeyring_Validation(t *testing.T) {
	_, err := DeriveKeyring("", "short", Argon2Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passphrase")
	assert.Contains(t, err.Error(), "salt")

	_, err = KeyringFromHex("abcd")
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = KeyringFromHex("zz")
	assert.Error(t, err)
}

func TestPkcs7(t *testing.T) {
	for n := 0; n < 40; n++ {
		data := make([]byte, n)
		padded := pkcs7Pad(append([]byte(nil), data...), 16)
		assert.Zero(t, len(padded)%16)

		out, err := pkcs7Unpad(padded, 16)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	}

	_, err := pkcs7Unpad([]byte{1, 2, 3}, 16)
	assert.ErrorIs(t, err, ErrDecryption)
}
