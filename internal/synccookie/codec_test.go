package synccookie

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret)
	require.NoError(t, err)
	return c
}

func TestNewCodec_WeakSecret(t *testing.T) {
	t.Parallel()

	_, err := NewCodec([]byte("short"))
	require.ErrorIs(t, err, ErrWeakSecret)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	payloads := []Payload{
		{UserID: "u-1", Email: "alice@shop.local", Exp: time.Now().Add(7 * 24 * time.Hour).UnixMilli()},
		{UserID: "65f1c0ffee", Email: "", Exp: 1},
		{UserID: "юзер", Email: "юзер@пример.рф", Exp: 1893456000000},
	}

	for _, p := range payloads {
		s, err := c.Encode(p)
		require.NoError(t, err)
		require.NotContains(t, s, "=", "значение должно быть url-safe без паддинга")

		got, err := c.Decode(s)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

// Payload читается без секрета: подпись — не шифрование.
func TestEncode_PayloadIsReadable(t *testing.T) {
	t.Parallel()

	s, err := newCodec(t).Encode(Payload{UserID: "u-1", Email: "a@b.c", Exp: 42})
	require.NoError(t, err)

	body, _, ok := strings.Cut(s, ".")
	require.True(t, ok)
	raw, err := base64.RawURLEncoding.DecodeString(body)
	require.NoError(t, err)
	require.JSONEq(t, `{"userId":"u-1","email":"a@b.c","exp":42}`, string(raw))
}

func TestEncode_Malformed(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	_, err := c.Encode(Payload{UserID: "", Email: "a@b.c", Exp: 1})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = c.Encode(Payload{UserID: "u-1", Exp: 0})
	require.ErrorIs(t, err, ErrMalformed)
}

// Любая однобитная мутация закодированного значения даёт ErrInvalidSignature.
func TestDecode_SingleBitMutation(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	s, err := c.Encode(Payload{UserID: "u-1", Email: "alice@shop.local", Exp: 1893456000000})
	require.NoError(t, err)

	for i := 0; i < len(s); i++ {
		for bit := 0; bit < 8; bit++ {
			b := []byte(s)
			b[i] ^= 1 << bit

			_, err := c.Decode(string(b))
			require.ErrorIsf(t, err, ErrInvalidSignature, "byte %d bit %d", i, bit)
		}
	}
}

func TestDecode_Structural(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	for _, s := range []string{"", ".", "abc", "abc.", ".abc", "a.b.c", "!!!.???"} {
		_, err := c.Decode(s)
		require.ErrorIs(t, err, ErrInvalidSignature, s)
	}
}

func TestDecode_OtherSecret(t *testing.T) {
	t.Parallel()

	other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	s, err := other.Encode(Payload{UserID: "u-1", Exp: 1})
	require.NoError(t, err)

	_, err = newCodec(t).Decode(s)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Expiry(t *testing.T) {
	t.Parallel()

	c := newCodec(t)
	now := time.Now()

	live, err := c.Encode(Payload{UserID: "u-1", Exp: now.Add(time.Minute).UnixMilli()})
	require.NoError(t, err)
	p, err := c.Verify(live, now)
	require.NoError(t, err)
	require.Equal(t, "u-1", p.UserID)

	stale, err := c.Encode(Payload{UserID: "u-1", Exp: now.Add(-time.Minute).UnixMilli()})
	require.NoError(t, err)
	_, err = c.Verify(stale, now)
	require.ErrorIs(t, err, ErrExpired)
}

func TestPeek_ReadsWithoutSecret(t *testing.T) {
	t.Parallel()

	c, err := NewCodec([]byte(strings.Repeat("p", MinSecretLen)))
	require.NoError(t, err)

	want := Payload{UserID: "u-9", Email: "peek@shop.local", Exp: 1735689600000}
	s, err := c.Encode(want)
	require.NoError(t, err)

	got, err := Peek(s)
	require.NoError(t, err)
	require.Equal(t, want, got)

	for _, bad := range []string{"", "nodot", ".sig", "!!!.sig", "bm90LWpzb24.sig"} {
		_, err := Peek(bad)
		require.ErrorIs(t, err, ErrMalformed, bad)
	}
}
