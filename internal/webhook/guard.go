package webhook

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"github.com/iamvkosarev/telegram-ai-relay/config"
	"github.com/iamvkosarev/telegram-ai-relay/lib/sl"
)

const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Guard admits a request only when it comes from Telegram and its path ends
// with the bot token. Telegram origin is proven by the webhook secret header
// or by a client address inside one of the trusted networks.
type Guard struct {
	token    string
	secret   string
	networks []netip.Prefix
	log      *slog.Logger
}

func NewGuard(cfg config.Telegram, log *slog.Logger) (*Guard, error) {
	networks := make([]netip.Prefix, 0, len(cfg.TrustedNetworks))
	for _, cidr := range cfg.TrustedNetworks {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trusted network %q: %w", cidr, err)
		}
		networks = append(networks, prefix.Masked())
	}
	return &Guard{
		token:    cfg.BotToken,
		secret:   cfg.WebhookSecret,
		networks: networks,
		log:      log.With(sl.Module("guard")),
	}, nil
}

func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if !g.fromTelegram(r) || !strings.HasSuffix(r.URL.Path, g.token) {
				g.log.Warn("unauthorized request", slog.String("remote", r.RemoteAddr), sl.Secret(r.URL.Path))
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		},
	)
}

func (g *Guard) fromTelegram(r *http.Request) bool {
	if g.secret != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(g.secret)) == 1 {
			return true
		}
	}
	addr, ok := remoteAddr(r.RemoteAddr)
	if !ok {
		return false
	}
	for _, network := range g.networks {
		if network.Contains(addr) {
			return true
		}
	}
	return false
}

// remoteAddr accepts both "ip:port" and a bare ip, the form left by
// middleware.RealIP.
func remoteAddr(raw string) (netip.Addr, bool) {
	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
