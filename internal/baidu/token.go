package baidu

import (
	"context"
	"sync"
	"time"
)

// tokenCache кэширует access token на весь процесс, чтобы параллельные
// запросы озвучки не устраивали лишние обмены ключей.
type tokenCache struct {
	exchange func(ctx context.Context) (string, error)
	ttl      time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenCache(exchange func(ctx context.Context) (string, error), ttl time.Duration) *tokenCache {
	return &tokenCache{exchange: exchange, ttl: ttl}
}

// get возвращает закэшированный токен или выполняет обмен ключей.
// Мьютекс удерживается на время обмена: параллельные вызовы дождутся
// одного обмена вместо того, чтобы запускать свой.
func (tc *tokenCache) get(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token != "" && time.Now().Before(tc.expires) {
		return tc.token, nil
	}
	token, err := tc.exchange(ctx)
	if err != nil {
		return "", err
	}
	tc.token = token
	tc.expires = time.Now().Add(tc.ttl)
	return token, nil
}

// invalidate сбрасывает кэш после сигнала провайдера о недействительном
// токене; следующий вызов get выполнит обмен заново.
func (tc *tokenCache) invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.token = ""
	tc.expires = time.Time{}
}
