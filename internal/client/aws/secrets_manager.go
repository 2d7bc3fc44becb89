// Package aws wraps the AWS clients the service depends on. Today that is
// only Secrets Manager, which holds the sponsor signing key in deployed
// environments.
package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/logger"
)

// SecretsManagerClient wraps the AWS Secrets Manager client
type SecretsManagerClient struct {
	svc *secretsmanager.Client
}

// NewSecretsManagerClient creates a Secrets Manager client from the default
// AWS configuration chain (environment, shared config, IAM role).
func NewSecretsManagerClient(ctx context.Context) (*SecretsManagerClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load AWS SDK config")
	}
	return &SecretsManagerClient{svc: secretsmanager.NewFromConfig(cfg)}, nil
}

// GetSecretString fetches a secret using the ARN named by secretArnEnvVar.
// If that variable is unset or the fetch fails, it falls back to reading the
// value directly from fallbackEnvVar, so local development works without
// AWS credentials.
func (c *SecretsManagerClient) GetSecretString(ctx context.Context, secretArnEnvVar, fallbackEnvVar string) (string, error) {
	secretArn := os.Getenv(secretArnEnvVar)

	if secretArn != "" {
		out, err := c.svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretArn),
		})
		if err == nil && out.SecretString != nil {
			return *out.SecretString, nil
		}
		logger.Warn("Secrets Manager fetch failed, falling back to environment",
			zap.String("arn_env_var", secretArnEnvVar),
			zap.Error(err),
		)
	}

	if value := os.Getenv(fallbackEnvVar); value != "" {
		return value, nil
	}
	return "", errors.Errorf("secret not available via %s or %s", secretArnEnvVar, fallbackEnvVar)
}

// LoadSecret is a convenience for startup code without an existing client.
// It returns the fallback env value directly when no ARN is configured, so
// the AWS config chain is only touched when it is actually needed.
func LoadSecret(ctx context.Context, secretArnEnvVar, fallbackEnvVar string) (string, error) {
	if os.Getenv(secretArnEnvVar) == "" {
		if value := os.Getenv(fallbackEnvVar); value != "" {
			return value, nil
		}
		return "", errors.Errorf("%s is required when %s is not set", fallbackEnvVar, secretArnEnvVar)
	}
	client, err := NewSecretsManagerClient(ctx)
	if err != nil {
		return "", err
	}
	return client.GetSecretString(ctx, secretArnEnvVar, fallbackEnvVar)
}
