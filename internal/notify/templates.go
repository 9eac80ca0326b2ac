package notify

import (
	"fmt"
	"strings"
	"time"
)

// APIKeyExpiryMessage builds the warning sent before an API key expires.
func APIKeyExpiryMessage(userName, keyName, keyPrefix string, expiresAt, now time.Time) (subject, body string) {
	daysLeft := int(expiresAt.Sub(now).Hours()/24) + 1
	if daysLeft < 0 {
		daysLeft = 0
	}
	if userName == "" {
		userName = "there"
	}

	subject = fmt.Sprintf("Action required: API key '%s' expires in %d day(s)", keyName, daysLeft)
	body = strings.Join([]string{
		fmt.Sprintf("Hello %s,", userName),
		"",
		fmt.Sprintf("Your ServerSoft API key '%s' (%s...) will expire on %s (%d day(s) from now).",
			keyName, keyPrefix, expiresAt.UTC().Format(time.RFC1123), daysLeft),
		"",
		"Rotate the key from Settings > API Keys, or create a replacement and",
		"update the machines and scripts that use it before the expiry date.",
		"",
		"If you no longer need this key, no action is required.",
		"",
		"ServerSoft",
	}, "\n")
	return subject, body
}

// PasswordResetMessage builds the email carrying a password reset link.
func PasswordResetMessage(userName, resetURL string, ttl time.Duration) (subject, body string) {
	if userName == "" {
		userName = "there"
	}
	subject = "Reset your ServerSoft password"
	body = strings.Join([]string{
		fmt.Sprintf("Hello %s,", userName),
		"",
		"Someone asked to reset the password of your ServerSoft account.",
		fmt.Sprintf("Use the link below within %s to choose a new password:", humanDuration(ttl)),
		"",
		resetURL,
		"",
		"If you did not ask for this, you can ignore this email.",
		"",
		"ServerSoft",
	}, "\n")
	return subject, body
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
