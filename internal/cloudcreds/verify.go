package cloudcreds

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/serversoft/serversoft/internal/telemetry"
)

// ErrRejected wraps failures where the provider answered and refused the
// credential, as opposed to the provider being unreachable.
var ErrRejected = errors.New("credential rejected by provider")

const defaultVerifyTimeout = 15 * time.Second

// tokenAccountURLs are the cheapest authenticated endpoints of the
// bearer-token providers.
var tokenAccountURLs = map[string]string{
	ProviderDigitalOcean: "https://api.digitalocean.com/v2/account",
	ProviderHetzner:      "https://api.hetzner.cloud/v1/servers?per_page=1",
	ProviderLinode:       "https://api.linode.com/v4/profile",
	ProviderVultr:        "https://api.vultr.com/v2/account",
}

var tokenFields = map[string]string{
	ProviderDigitalOcean: "api_token",
	ProviderHetzner:      "api_token",
	ProviderLinode:       "api_token",
	ProviderVultr:        "api_key",
}

// Verifier checks credentials against the provider APIs. The endpoint fields
// default to the public APIs and exist so tests can point them elsewhere.
type Verifier struct {
	HTTPClient *http.Client
	Timeout    time.Duration

	AWSEndpoint      string
	AzureAuthority   string
	GCPEndpoint      string
	TokenAccountURLs map[string]string
}

// NewVerifier returns a Verifier using the public provider endpoints.
func NewVerifier() *Verifier {
	urls := make(map[string]string, len(tokenAccountURLs))
	for k, v := range tokenAccountURLs {
		urls[k] = v
	}
	return &Verifier{
		HTTPClient:       &http.Client{Timeout: defaultVerifyTimeout},
		Timeout:          defaultVerifyTimeout,
		AzureAuthority:   "https://login.microsoftonline.com",
		TokenAccountURLs: urls,
	}
}

// Verify calls the provider with the decrypted values. A nil error means the
// provider accepted the credential.
func (v *Verifier) Verify(ctx context.Context, provider string, values map[string]string) error {
	p, err := Lookup(provider)
	if err != nil {
		return err
	}
	if err := p.Validate(values, false); err != nil {
		return err
	}

	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	switch p.ID {
	case ProviderAWS:
		err = v.verifyAWS(ctx, values)
	case ProviderAzure:
		err = v.verifyAzure(ctx, values)
	case ProviderGCP:
		err = v.verifyGCP(ctx, values)
	default:
		err = v.verifyToken(ctx, p.ID, values[tokenFields[p.ID]])
	}

	result := "valid"
	if err != nil {
		result = "invalid"
	}
	telemetry.CredentialVerificationsTotal.WithLabelValues(p.ID, result).Inc()
	return err
}
