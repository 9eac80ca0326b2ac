package cloudcreds

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// verifyAWS calls sts:GetCallerIdentity, which every valid key may call.
func (v *Verifier) verifyAWS(ctx context.Context, values map[string]string) error {
	region := values["region"]
	if region == "" {
		region = "us-east-1"
	}
	cfg := aws.Config{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			values["access_key_id"], values["secret_access_key"], values["session_token"]),
	}
	if v.HTTPClient != nil {
		cfg.HTTPClient = v.HTTPClient
	}
	client := sts.NewFromConfig(cfg, func(o *sts.Options) {
		if v.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(v.AWSEndpoint)
		}
	})

	if _, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		return fmt.Errorf("%w: aws: %v", ErrRejected, err)
	}
	return nil
}
