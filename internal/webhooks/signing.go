package webhooks

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/serversoft/serversoft/internal/crypto"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/telemetry"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-ServerSoft-Signature"

const signaturePrefix = "sha256="

// ErrInvalidURL is returned for webhook URLs that are not absolute http(s).
var ErrInvalidURL = errors.New("webhook url must be an absolute http or https URL")

// Sign returns the SignatureHeader value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a SignatureHeader value against body.
func VerifySignature(secret string, body []byte, header string) bool {
	sigHex, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// CheckSecret compares presented with the webhook's stored secret in
// constant time. A stored secret that fails to decrypt never matches.
func CheckSecret(c *crypto.Cipher, hook *models.WorkflowWebhook, presented string) bool {
	if presented == "" {
		return false
	}
	stored, err := c.Decrypt(hook.SecretEncrypted)
	if err != nil {
		telemetry.CredentialDecryptFailuresTotal.Inc()
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// NewCredentials returns a fresh callback key and shared secret.
func NewCredentials() (key, secret string, err error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate webhook key: %w", err)
	}
	secret, err = crypto.GenerateSecret()
	if err != nil {
		return "", "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return "whk_" + hex.EncodeToString(b), secret, nil
}

// ValidateURL rejects anything but absolute http and https URLs.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	return nil
}
