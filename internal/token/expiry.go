// token читает срок действия access-токена без проверки подписи.
//
// Подпись проверяет только issuer; здесь срок нужен исключительно для
// локального планирования refresh и никогда не используется как решение о доверии.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed — токен не разбирается или не содержит числового exp.
// Вызывающая сторона трактует ошибку как «срок неизвестен, обновить сейчас».
var ErrMalformed = errors.New("malformed token")

var parser = jwt.NewParser()

// ExpiryMillis возвращает exp токена в миллисекундах с эпохи.
// При любой ошибке разбора возвращает 0 и ErrMalformed.
func ExpiryMillis(tok string) (int64, error) {
	const op = "token.ExpiryMillis"

	if tok == "" {
		return 0, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return 0, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	return exp.Unix() * 1000, nil
}

// Expiry — то же, что ExpiryMillis, но в виде time.Time (UTC).
func Expiry(tok string) (time.Time, error) {
	ms, err := ExpiryMillis(tok)
	if err != nil {
		return time.Time{}, err
	}

	return time.UnixMilli(ms).UTC(), nil
}
