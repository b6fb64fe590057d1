package cognito

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// ErrCognitoThrottled marks errors returned when Cognito throttles requests.
var ErrCognitoThrottled = errors.New("cognito throttling")

// ErrCognitoNotAuthorized marks errors returned when Cognito rejects credentials.
var ErrCognitoNotAuthorized = errors.New("cognito not authorized")

// ErrCognitoUserExists marks errors returned when trying to create an existing user.
var ErrCognitoUserExists = errors.New("cognito user already exists")

// CognitoClient answers membership questions against a user pool, which is
// where the club's whitelist of members lives.
type CognitoClient struct {
	client *cognitoidentityprovider.Client
	poolID string
}

// NewClient creates a new Cognito client from a pool ID.
// The region is extracted from the pool ID (format: "region_poolid").
func NewClient(ctx context.Context, poolID string) (*CognitoClient, error) {
	region, err := regionFromPoolID(poolID)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &CognitoClient{
		client: cognitoidentityprovider.NewFromConfig(awsCfg),
		poolID: poolID,
	}, nil
}

// Member is the subset of pool attributes the club needs.
type Member struct {
	Username string
	Name     string
	Email    string
	Phone    string
}

// LookupMember fetches a pool user. found is false when the pool has no such
// user; err is reserved for failures to reach the pool.
func (c *CognitoClient) LookupMember(ctx context.Context, username string) (Member, bool, error) {
	out, err := c.client.AdminGetUser(ctx, &cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(c.poolID),
		Username:   aws.String(username),
	})
	if err != nil {
		var notFound *types.UserNotFoundException
		if errors.As(err, &notFound) {
			return Member{}, false, nil
		}
		return Member{}, false, mapCognitoError(err)
	}

	m := Member{Username: aws.ToString(out.Username)}
	for _, attr := range out.UserAttributes {
		switch aws.ToString(attr.Name) {
		case "name":
			m.Name = aws.ToString(attr.Value)
		case "email":
			m.Email = aws.ToString(attr.Value)
		case "phone_number":
			m.Phone = aws.ToString(attr.Value)
		}
	}
	return m, true, nil
}

// CreateMember adds a user to the pool keyed by phone or email.
// No welcome message is sent.
func (c *CognitoClient) CreateMember(ctx context.Context, username string) error {
	attr := types.AttributeType{Name: aws.String("email"), Value: aws.String(username)}
	verified := types.AttributeType{Name: aws.String("email_verified"), Value: aws.String("true")}
	if IsPhoneNumber(username) {
		attr = types.AttributeType{Name: aws.String("phone_number"), Value: aws.String(username)}
		verified = types.AttributeType{Name: aws.String("phone_number_verified"), Value: aws.String("true")}
	}

	_, err := c.client.AdminCreateUser(ctx, &cognitoidentityprovider.AdminCreateUserInput{
		UserPoolId:     aws.String(c.poolID),
		Username:       aws.String(username),
		MessageAction:  types.MessageActionTypeSuppress,
		UserAttributes: []types.AttributeType{attr, verified},
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

func mapCognitoError(err error) error {
	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return fmt.Errorf("%w: %v", ErrCognitoThrottled, err)
	}
	var notAuthorized *types.NotAuthorizedException
	if errors.As(err, &notAuthorized) {
		return fmt.Errorf("%w: %v", ErrCognitoNotAuthorized, err)
	}
	var userExists *types.UsernameExistsException
	if errors.As(err, &userExists) {
		return fmt.Errorf("%w: %v", ErrCognitoUserExists, err)
	}
	return err
}

func regionFromPoolID(poolID string) (string, error) {
	parts := strings.SplitN(poolID, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid cognito pool id: %q", poolID)
	}
	return parts[0], nil
}
