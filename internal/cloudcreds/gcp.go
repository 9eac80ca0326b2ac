package cloudcreds

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// verifyGCP lists at most one bucket in the project. The call needs only
// storage.buckets.list, which most service accounts used for provisioning
// hold; a permission error still proves the key authenticated, so it is
// treated as valid.
func (v *Verifier) verifyGCP(ctx context.Context, values map[string]string) error {
	opts := []option.ClientOption{option.WithCredentialsJSON([]byte(values["service_account_json"]))}
	if v.GCPEndpoint != "" {
		opts = append(opts, option.WithEndpoint(v.GCPEndpoint))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("%w: gcp: %v", ErrRejected, err)
	}
	defer client.Close()

	it := client.Buckets(ctx, values["project_id"])
	it.PageInfo().MaxSize = 1
	_, err = it.Next()
	if err == nil || errors.Is(err, iterator.Done) || isForbidden(err) {
		return nil
	}
	return fmt.Errorf("%w: gcp: %v", ErrRejected, err)
}

func isForbidden(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusForbidden
}
