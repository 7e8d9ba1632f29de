// cookies разбирает Set-Cookie ответа issuer'а и переизлучает куки
// с атрибутами безопасности, заданными конфигурацией шлюза, а не issuer'ом.
package cookies

import (
	"net/http"
	"slices"
	"strings"
	"time"
)

// Split разбивает объединённое значение Set-Cookie на отдельные куки.
// Граница — запятая, за которой идут необязательные пробелы, токен имени и '='.
// Запятые внутри значений и атрибутов (Expires=Wed, 21 Oct 2015 ...) не режут.
func Split(header string) []string {
	var out []string

	start := 0
	for i := 0; i < len(header); i++ {
		if header[i] != ',' || !startsCookie(header[i+1:]) {
			continue
		}

		if part := strings.TrimSpace(header[start:i]); part != "" {
			out = append(out, part)
		}
		start = i + 1
	}

	if part := strings.TrimSpace(header[start:]); part != "" {
		out = append(out, part)
	}

	return out
}

// startsCookie сообщает, начинается ли s с " *token=".
func startsCookie(s string) bool {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}

	n := 0
	for i < len(s) && isTokenChar(s[i]) {
		i++
		n++
	}

	return n > 0 && i < len(s) && s[i] == '='
}

// isTokenChar — символ токена по RFC 7230 (без разделителей и управляющих).
func isTokenChar(c byte) bool {
	if c <= ' ' || c >= 0x7f {
		return false
	}

	return !strings.ContainsRune(`()<>@,;:\"/[]?={}`, rune(c))
}

// Parse разбирает набор заголовков Set-Cookie (каждый может содержать
// несколько куки) в упорядоченный список. Невалидные куски пропускаются.
func Parse(headers []string) []*http.Cookie {
	var out []*http.Cookie

	for _, h := range headers {
		for _, part := range Split(h) {
			c, err := http.ParseSetCookie(part)
			if err != nil {
				continue
			}
			out = append(out, c)
		}
	}

	return out
}

// Find возвращает последнюю куку с именем name или nil.
func Find(cs []*http.Cookie, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range cs {
		if c.Name == name {
			found = c
		}
	}

	return found
}

// Without возвращает список без кук с перечисленными именами.
func Without(cs []*http.Cookie, names ...string) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cs))
	for _, c := range cs {
		if !slices.Contains(names, c.Name) {
			out = append(out, c)
		}
	}

	return out
}

// Expiry — реальный срок жизни куки по Max-Age (приоритетнее) или Expires.
// ok=false, если issuer не указал ни того, ни другого.
func Expiry(c *http.Cookie, now time.Time) (time.Time, bool) {
	if c == nil {
		return time.Time{}, false
	}

	switch {
	case c.MaxAge > 0:
		return now.Add(time.Duration(c.MaxAge) * time.Second), true
	case c.MaxAge < 0:
		return now, true
	case !c.Expires.IsZero():
		return c.Expires, true
	}

	return time.Time{}, false
}

// Policy — нормализованные атрибуты исходящих кук.
type Policy struct {
	// Secure выставляется в production.
	Secure bool
	// MaxAge — фиксированный срок жизни переизлучаемых кук.
	MaxAge time.Duration
	// Readable — имена кук без HttpOnly (например, sync-кука).
	Readable []string
}

// Relay переизлучает куки issuer'а: HttpOnly (кроме Readable), Secure из
// конфигурации, SameSite=Lax, Path=/ и фиксированный MaxAge. Атрибуты
// issuer'а (Domain, Path, SameSite, сроки) отбрасываются.
func (p Policy) Relay(w http.ResponseWriter, cs []*http.Cookie) {
	for _, c := range cs {
		p.SetWithMaxAge(w, c.Name, c.Value, p.MaxAge)
	}
}

// Set пишет куку с нормализованными атрибутами и MaxAge политики.
func (p Policy) Set(w http.ResponseWriter, name, value string) {
	p.SetWithMaxAge(w, name, value, p.MaxAge)
}

// SetWithMaxAge пишет куку с явным сроком жизни.
func (p Policy) SetWithMaxAge(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	secs := int(maxAge / time.Second)
	if secs <= 0 {
		secs = -1
	}

	http.SetCookie(w, p.cookie(name, value, secs))
}

// Clear стирает куки: пустое значение, MaxAge<0 и Expires в эпохе.
func (p Policy) Clear(w http.ResponseWriter, names ...string) {
	for _, name := range names {
		c := p.cookie(name, "", -1)
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (p Policy) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: !slices.Contains(p.Readable, name),
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
