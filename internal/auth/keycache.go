// Package auth はJWTアクセストークンの検証と検証鍵の取得を提供する。
package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// KeyCacheConfig は検証鍵キャッシュの設定。
type KeyCacheConfig struct {
	// PublicKeyURL はPEM形式の公開鍵を配布するエンドポイント。
	PublicKeyURL string
	// FetchTimeout は鍵取得リクエストのタイムアウト。ゼロ値の場合は2秒。
	FetchTimeout time.Duration
	// TTL はキャッシュした鍵の有効期間。経過後は再取得を試みる。
	// ゼロ値の場合はプロセス生存期間中キャッシュし続ける。
	TTL time.Duration
}

// cachedKey はキャッシュされた検証鍵と取得時刻を保持する。
type cachedKey struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// KeyCache は鍵配布エンドポイントから取得したRSA公開鍵をプロセス内で共有する。
// 初回取得の競合は排他せず、重複フェッチを許容する（取得結果は冪等なため
// どちらがキャッシュを勝ち取っても正しい）。
type KeyCache struct {
	config KeyCacheConfig
	client *http.Client
	cached atomic.Pointer[cachedKey]
}

// NewKeyCache はKeyCacheを生成する。
func NewKeyCache(config KeyCacheConfig) *KeyCache {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 2 * time.Second
	}
	return &KeyCache{
		config: config,
		client: &http.Client{Timeout: config.FetchTimeout},
	}
}

// Get はキャッシュ済みの検証鍵を返す。未取得またはTTL超過の場合は再取得する。
// 再取得に失敗しても期限切れの鍵が残っていればそれを返す
// （鍵ローテーション遅延より可用性を優先する）。
func (c *KeyCache) Get(ctx context.Context) (*rsa.PublicKey, error) {
	entry := c.cached.Load()
	if entry != nil && !c.expired(entry) {
		return entry.key, nil
	}

	key, err := c.fetch(ctx)
	if err != nil {
		if entry != nil {
			return entry.key, nil
		}
		return nil, fmt.Errorf("failed to obtain verification key: %w", err)
	}

	c.cached.Store(&cachedKey{key: key, fetchedAt: time.Now()})
	return key, nil
}

// expired はキャッシュエントリがTTLを超過しているかを返す。
func (c *KeyCache) expired(entry *cachedKey) bool {
	if c.config.TTL <= 0 {
		return false
	}
	return time.Since(entry.fetchedAt) > c.config.TTL
}

// fetch は鍵配布エンドポイントからPEM形式の公開鍵を取得してパースする。
// HTTP 200以外は取得失敗として扱う。
func (c *KeyCache) fetch(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.PublicKeyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key fetch request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("public key endpoint returned status %d", resp.StatusCode)
	}

	pemBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key response: %w", err)
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key PEM: %w", err)
	}

	return key, nil
}
