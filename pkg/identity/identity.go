// Package identity talks to the Cognito user pool that owns account records
// and the profile photo attribute.
package identity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cognito "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/errors"
)

// API is the slice of the Cognito client the service depends on.
type API interface {
	AdminUpdateUserAttributes(ctx context.Context, params *cognito.AdminUpdateUserAttributesInput, optFns ...func(*cognito.Options)) (*cognito.AdminUpdateUserAttributesOutput, error)
	AdminDeleteUserAttributes(ctx context.Context, params *cognito.AdminDeleteUserAttributesInput, optFns ...func(*cognito.Options)) (*cognito.AdminDeleteUserAttributesOutput, error)
	AdminGetUser(ctx context.Context, params *cognito.AdminGetUserInput, optFns ...func(*cognito.Options)) (*cognito.AdminGetUserOutput, error)
	DescribeUserPool(ctx context.Context, params *cognito.DescribeUserPoolInput, optFns ...func(*cognito.Options)) (*cognito.DescribeUserPoolOutput, error)
}

func NewCognito(awsCfg aws.Config, endpoint *string) *cognito.Client {
	return cognito.NewFromConfig(awsCfg, func(o *cognito.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

// Client owns the profile photo attribute on user records.
type Client struct {
	api API
	cfg config.IdentityConfig
}

func New(api API, cfg config.IdentityConfig) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("cognito api is required")
	}
	if cfg.UserPoolID == "" {
		return nil, fmt.Errorf("user pool id is required")
	}
	if cfg.PhotoAttribute == "" {
		return nil, fmt.Errorf("photo attribute name is required")
	}
	return &Client{api: api, cfg: cfg}, nil
}

// SetProfilePhoto writes the stored photo URL onto the user record.
func (c *Client) SetProfilePhoto(ctx context.Context, userID string, photoURL string) error {
	_, err := c.api.AdminUpdateUserAttributes(ctx, &cognito.AdminUpdateUserAttributesInput{
		UserPoolId: aws.String(c.cfg.UserPoolID),
		Username:   aws.String(userID),
		UserAttributes: []types.AttributeType{
			{
				Name:  aws.String(c.cfg.PhotoAttribute),
				Value: aws.String(photoURL),
			},
		},
	})
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "updating profile photo attribute")
	}
	return nil
}

// ClearProfilePhoto removes the photo attribute from the user record.
func (c *Client) ClearProfilePhoto(ctx context.Context, userID string) error {
	_, err := c.api.AdminDeleteUserAttributes(ctx, &cognito.AdminDeleteUserAttributesInput{
		UserPoolId:         aws.String(c.cfg.UserPoolID),
		Username:           aws.String(userID),
		UserAttributeNames: []string{c.cfg.PhotoAttribute},
	})
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "clearing profile photo attribute")
	}
	return nil
}

// ProfilePhoto returns the current photo URL, empty when unset.
func (c *Client) ProfilePhoto(ctx context.Context, userID string) (string, error) {
	out, err := c.api.AdminGetUser(ctx, &cognito.AdminGetUserInput{
		UserPoolId: aws.String(c.cfg.UserPoolID),
		Username:   aws.String(userID),
	})
	if err != nil {
		return "", errors.Wrap(errors.CodeDependency, err, "fetching user record")
	}
	for _, attr := range out.UserAttributes {
		if aws.ToString(attr.Name) == c.cfg.PhotoAttribute {
			return aws.ToString(attr.Value), nil
		}
	}
	return "", nil
}

// Ping verifies the user pool is reachable. Used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.DescribeUserPool(ctx, &cognito.DescribeUserPoolInput{
		UserPoolId: aws.String(c.cfg.UserPoolID),
	})
	if err != nil {
		return fmt.Errorf("pinging user pool: %w", err)
	}
	return nil
}
