package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// WebhookGuard はアラート転送先Webhookへの送信をSSRFから保護する。
// 転送先は運用者が環境変数で設定するが、設定ミスで内部ネットワークへ
// 送信されることを防ぐため、起動時の検証と送信時のDialer検証の両方を行う。
type WebhookGuard interface {
	// ValidateURL は転送先URLを静的に検証する（DNS解決は行わない）。
	ValidateURL(rawURL string) error

	// NewSafeClient はDNS解決後のIPアドレスを検証するHTTPクライアントを生成する。
	// DNS再バインディングによる内部アドレスへの到達もここで防止される。
	NewSafeClient(timeout time.Duration) *http.Client
}

// blockedPrefixes は転送先として許可しないアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),     // RFC 1918
	netip.MustParsePrefix("172.16.0.0/12"),  // RFC 1918
	netip.MustParsePrefix("192.168.0.0/16"), // RFC 1918
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // メタデータIPを含む
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // CGNAT
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// webhookGuard はWebhookGuardの実装。
type webhookGuard struct {
	allowPlainHTTP bool
}

// NewWebhookGuard はWebhookGuardを生成する。
// allowPlainHTTPがfalseの場合はhttpsのみ許可する。
func NewWebhookGuard(allowPlainHTTP bool) *webhookGuard {
	return &webhookGuard{allowPlainHTTP: allowPlainHTTP}
}

func (g *webhookGuard) schemes() []string {
	if g.allowPlainHTTP {
		return []string{"https", "http"}
	}
	return []string{"https"}
}

// ValidateURL は転送先URLを静的に検証する。
func (g *webhookGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	allowed := false
	for _, s := range g.schemes() {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, g.schemes())
	}

	// 認証情報はURLではなくヘッダーで渡す
	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
		return nil
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
func (g *webhookGuard) NewSafeClient(timeout time.Duration) *http.Client {
	ports := []int{443}
	if g.allowPlainHTTP {
		ports = append(ports, 80)
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes()...).
		SetAllowedPorts(ports...).
		Build()

	return safeurl.Client(config).Client
}

// isBlockedAddr はアドレスがブロック対象の範囲に含まれるかを判定する。
// IPv4射影IPv6アドレスはIPv4として判定する。
func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
