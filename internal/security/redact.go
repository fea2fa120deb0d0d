package security

import (
	"net/url"
	"regexp"
	"strings"

	"options-engine/internal/config"
)

var secretPatterns = []*regexp.Regexp{
	// Telegram bot tokens appear in request URLs: /bot<id>:<secret>/
	regexp.MustCompile(`bot\d+:[A-Za-z0-9_-]+`),
	regexp.MustCompile(`(?i)(password|token|secret)=([^\s&"']+)`),
	// Slack webhook paths carry the credential.
	regexp.MustCompile(`hooks\.slack\.com/services/[A-Za-z0-9/]+`),
}

// MaskCredential keeps the first and last four characters of long values.
func MaskCredential(value string) string {
	switch {
	case value == "":
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	default:
		return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	}
}

// MaskSecrets masks credentials embedded in s, typically an error message
// that quotes a request URL.
func MaskSecrets(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllStringFunc(s, func(m string) string {
			if i := strings.IndexAny(m, "=:"); i > 0 && !strings.HasPrefix(m, "hooks.") {
				return m[:i+1] + MaskCredential(m[i+1:])
			}
			return MaskCredential(m)
		})
	}
	return s
}

// MaskURL keeps the scheme and host of a URL and masks the rest.
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MaskCredential(raw)
	}
	return u.Scheme + "://" + u.Host + "/***"
}

// RedactConfig returns a copy of cfg safe to print.
func RedactConfig(cfg *config.Config) *config.Config {
	out := *cfg
	out.Notifications.Webhook.URL = MaskURL(cfg.Notifications.Webhook.URL)
	out.Notifications.Telegram.BotToken = MaskCredential(cfg.Notifications.Telegram.BotToken)
	out.Redis.Password = MaskCredential(cfg.Redis.Password)
	out.Store.DSN = maskDSN(cfg.Store.DSN)
	return &out
}

// maskDSN hides the password of a postgres URL DSN or key=value DSN.
func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
			return u.String()
		}
	}
	return MaskSecrets(dsn)
}
