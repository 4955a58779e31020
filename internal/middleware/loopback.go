package middleware

import (
	"net"
	"net/http"
	"os"
	"strings"
)

// LoopbackOnly разрешает запрос только с loopback-адреса или при заголовке
// X-Bridge-Secret == BRIDGE_SECRET. Bridge — локальная граница между агентом
// и окном рендерера; снаружи он недоступен.
func LoopbackOnly(next http.Handler) http.Handler {
	secret := strings.TrimSpace(os.Getenv("BRIDGE_SECRET"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.Header.Get("X-Bridge-Secret") == secret {
			next.ServeHTTP(w, r)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}

// MaskToken маскирует bearer-токен в логах (полное значение не светим).
func MaskToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
