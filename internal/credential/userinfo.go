package credential

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// LookupAddress resolves the account address and display name that ts
// authenticates as. opts are appended to the client options, mainly to
// point the lookup at a test server.
func LookupAddress(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (address, name string, err error) {
	clientOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)

	svc, err := goauth2.NewService(ctx, clientOpts...)
	if err != nil {
		return "", "", fmt.Errorf("creating userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("fetching userinfo: %w", err)
	}
	if info.Email == "" {
		return "", "", fmt.Errorf("userinfo returned no email address")
	}

	return info.Email, info.Name, nil
}
