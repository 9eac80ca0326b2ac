package cloudcreds

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// verifyAzure requests a management-plane token for the service principal.
func (v *Verifier) verifyAzure(ctx context.Context, values map[string]string) error {
	cc := clientcredentials.Config{
		ClientID:     values["client_id"],
		ClientSecret: values["client_secret"],
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", v.AzureAuthority, values["tenant_id"]),
		Scopes:       []string{"https://management.azure.com/.default"},
	}
	if v.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.HTTPClient)
	}
	if _, err := cc.Token(ctx); err != nil {
		return fmt.Errorf("%w: azure: %v", ErrRejected, err)
	}
	return nil
}
