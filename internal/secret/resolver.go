// Package secret retrieves secret values, such as service account credentials,
// from SSM Parameter Store or the environment.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrNotFound is returned when no backend holds the requested secret.
var ErrNotFound = errors.New("secret not found")

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches secrets from AWS Systems Manager Parameter Store.
type SSMResolver struct {
	client SSMClient
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

// GetSecret retrieves a SecureString parameter from SSM with decryption.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("ssm parameter %q: %w: %w", name, ErrNotFound, err)
		}
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value: %w", name, ErrNotFound)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver fetches secrets from environment variables.
// "/drivemirror/service-account" maps to Prefix + "SERVICE_ACCOUNT".
type EnvResolver struct {
	Prefix string
}

// NewEnvResolver returns a Resolver that reads from environment variables
// named with the given prefix.
func NewEnvResolver(prefix string) *EnvResolver {
	return &EnvResolver{Prefix: prefix}
}

// GetSecret reads from the environment variable derived from the parameter name.
func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := r.Prefix + paramNameToEnvVar(name)
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set: %w", envName, name, ErrNotFound)
	}
	return val, nil
}

// paramNameToEnvVar converts an SSM parameter name to an environment variable name.
// "/drivemirror/service-account" -> "SERVICE_ACCOUNT"
func paramNameToEnvVar(name string) string {
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(last))
}

// ChainResolver tries each resolver in order and returns the first value found.
// Errors other than ErrNotFound stop the chain.
type ChainResolver []Resolver

// GetSecret implements Resolver.
func (c ChainResolver) GetSecret(ctx context.Context, name string) (string, error) {
	for _, r := range c {
		val, err := r.GetSecret(ctx, name)
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("secret %q: %w", name, ErrNotFound)
}

// StaticResolver serves secrets from a fixed map.
type StaticResolver map[string]string

// GetSecret implements Resolver.
func (s StaticResolver) GetSecret(_ context.Context, name string) (string, error) {
	if val, ok := s[name]; ok {
		return val, nil
	}
	return "", fmt.Errorf("static secret %q: %w", name, ErrNotFound)
}
