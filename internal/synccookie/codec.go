// synccookie кодирует и проверяет подписанный маркер аутентификации,
// который шлюз отдаёт браузеру в читаемой (не HttpOnly) cookie.
//
// Формат: base64url(json(payload)) + "." + base64url(HMAC-SHA256(secret, json(payload))).
// Поля payload читаемы клиентом; целостность проверяется только на сервере.
// Cookie — подсказка для UI («вошли как X»), а не учётные данные.
package synccookie

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinSecretLen — минимальная длина секрета HMAC.
const MinSecretLen = 32

var (
	// ErrInvalidSignature — значение не прошло проверку. Возвращается на любой
	// сбой Decode (структура, base64, подпись, JSON), чтобы не выдавать, какая
	// именно проверка не прошла.
	ErrInvalidSignature = errors.New("invalid sync cookie signature")

	// ErrMalformed — payload нельзя закодировать (например, пустой userId).
	ErrMalformed = errors.New("malformed sync payload")

	// ErrExpired — подпись верна, но exp уже наступил.
	ErrExpired = errors.New("sync cookie expired")

	// ErrWeakSecret — секрет короче MinSecretLen.
	ErrWeakSecret = errors.New("sync cookie secret is too short")
)

// Payload — единственные сведения о сессии, доступные клиентскому скрипту.
type Payload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Exp    int64  `json:"exp"` // epoch-ms
}

// Expired сообщает, истёк ли payload к моменту now.
func (p Payload) Expired(now time.Time) bool {
	return p.Exp <= now.UnixMilli()
}

// Codec подписывает и проверяет payload. Безопасен для конкурентного использования.
type Codec struct {
	secret []byte
}

// NewCodec создаёт Codec с копией секрета.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}

	return &Codec{secret: bytes.Clone(secret)}, nil
}

// Encode сериализует и подписывает payload.
func (c *Codec) Encode(p Payload) (string, error) {
	const op = "synccookie.Encode"

	if strings.TrimSpace(p.UserID) == "" || p.Exp <= 0 {
		return "", fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	enc := base64.RawURLEncoding
	return enc.EncodeToString(raw) + "." + enc.EncodeToString(c.sign(raw)), nil
}

// Decode проверяет подпись и возвращает payload. Срок не проверяется (см. Verify).
func (c *Codec) Decode(s string) (Payload, error) {
	const op = "synccookie.Decode"

	invalid := fmt.Errorf("%s: %w", op, ErrInvalidSignature)

	body, sig, ok := strings.Cut(s, ".")
	if !ok || body == "" || sig == "" {
		return Payload{}, invalid
	}

	enc := base64.RawURLEncoding
	raw, err := enc.Strict().DecodeString(body)
	if err != nil {
		return Payload{}, invalid
	}

	gotMAC, err := enc.Strict().DecodeString(sig)
	if err != nil {
		return Payload{}, invalid
	}

	if !hmac.Equal(gotMAC, c.sign(raw)) {
		return Payload{}, invalid
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == "" {
		return Payload{}, invalid
	}

	return p, nil
}

// Verify — Decode плюс проверка срока относительно now.
func (c *Codec) Verify(s string, now time.Time) (Payload, error) {
	p, err := c.Decode(s)
	if err != nil {
		return Payload{}, err
	}

	if p.Expired(now) {
		return Payload{}, fmt.Errorf("synccookie.Verify: %w", ErrExpired)
	}

	return p, nil
}

func (c *Codec) sign(raw []byte) []byte {
	m := hmac.New(sha256.New, c.secret)
	m.Write(raw)
	return m.Sum(nil)
}

// Peek читает payload без проверки подписи — так его видит клиент без секрета.
// Результат годится только для отображения («вошли как X»).
func Peek(s string) (Payload, error) {
	body, _, ok := strings.Cut(s, ".")
	if !ok || body == "" {
		return Payload{}, fmt.Errorf("synccookie.Peek: %w", ErrMalformed)
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Payload{}, fmt.Errorf("synccookie.Peek: %w", ErrMalformed)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("synccookie.Peek: %w", ErrMalformed)
	}

	return p, nil
}
