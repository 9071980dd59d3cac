package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used to resolve credentials
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Credentials is the username/password pair stored in a database secret
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialResolver resolves database credentials at invocation time
type CredentialResolver interface {
	DatabaseCredentials(ctx context.Context, secretID string) (*Credentials, error)
}

// SecretsManagerResolver reads credentials from a JSON secret.
// Nothing is cached; every call hits the secret store.
type SecretsManagerResolver struct {
	client SecretsManagerAPI
}

// NewSecretsManagerResolver creates a resolver on an existing client
func NewSecretsManagerResolver(client SecretsManagerAPI) *SecretsManagerResolver {
	return &SecretsManagerResolver{client: client}
}

// DatabaseCredentials implements CredentialResolver
func (r *SecretsManagerResolver) DatabaseCredentials(ctx context.Context, secretID string) (*Credentials, error) {
	if secretID == "" {
		return nil, errors.New("secret id is required")
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret value: %w", err)
	}

	payload := aws.ToString(out.SecretString)
	if payload == "" && len(out.SecretBinary) > 0 {
		payload = string(out.SecretBinary)
	}
	if payload == "" {
		return nil, fmt.Errorf("secret %s has no value", secretID)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(payload), &creds); err != nil {
		return nil, fmt.Errorf("failed to decode secret %s: %w", secretID, err)
	}
	if creds.Username == "" {
		return nil, fmt.Errorf("secret %s has no username", secretID)
	}

	return &creds, nil
}

// StaticCredentials returns a fixed pair regardless of the secret id, for local runs
type StaticCredentials Credentials

// DatabaseCredentials implements CredentialResolver
func (s StaticCredentials) DatabaseCredentials(_ context.Context, _ string) (*Credentials, error) {
	creds := Credentials(s)
	return &creds, nil
}
