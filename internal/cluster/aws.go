package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ErrNoEndpoint is returned when the parameter store holds no usable value.
var ErrNoEndpoint = errors.New("search endpoint parameter is empty")

// AWSOptions selects region and credentials. Static keys take precedence
// over the named profile; with neither set the default chain is used.
type AWSOptions struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// LoadAWSConfig resolves an aws.Config from the environment and opts.
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	var loaders []func(*config.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	switch {
	case opts.AccessKeyID != "" && opts.SecretAccessKey != "":
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	case opts.Profile != "":
		loaders = append(loaders, config.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// ParameterAPI is the slice of the SSM client used for endpoint lookup.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NewParameterAPI returns an SSM client for cfg.
func NewParameterAPI(cfg aws.Config) ParameterAPI {
	return ssm.NewFromConfig(cfg)
}

// ResolveEndpoint reads the cluster endpoint from the parameter store.
func ResolveEndpoint(ctx context.Context, api ParameterAPI, name string) (string, error) {
	out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out == nil || out.Parameter == nil {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, name)
	}
	v := strings.TrimSpace(aws.ToString(out.Parameter.Value))
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, name)
	}
	return NormalizeEndpoint(v), nil
}
