// Copyright 2023 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets resolves credential material (GitHub App private
// keys, GitLab admin tokens) either directly from a configuration
// value or, when a Secret Manager resource name is supplied instead,
// from Google Cloud Secret Manager.
package secrets

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// secretManagerPrefix is the resource-name prefix that distinguishes a
// Secret Manager reference from a literal value in configuration.
const secretManagerPrefix = "projects/"

// Resolve returns value unchanged unless it looks like a Secret
// Manager resource name ('projects/*/secrets/*/versions/*'), in which
// case it is fetched from Secret Manager.
func Resolve(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, secretManagerPrefix) {
		return value, nil
	}
	return AccessSecretFromSecretManager(ctx, value)
}

// AccessSecretFromSecretManager reads a secret from Secret Manager and validates that it was not
// corrupted during retrieval. The secretResourceName should be in the format:
// 'projects/*/secrets/*/versions/*'. This function is intended for use cases
// where you need to fetch one and only one secret from secret manager as it
// instantiates a temporary secret manager client in order to fetch the secret.
func AccessSecretFromSecretManager(ctx context.Context, secretResourceName string) (s string, e error) {
	sm, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer func(sm *secretmanager.Client) {
		if cerr := sm.Close(); cerr != nil {
			e = fmt.Errorf("failed to close secret manager client: %w", cerr)
		}
	}(sm)

	secret, err := AccessSecret(ctx, sm, secretResourceName)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret: %w", err)
	}
	return secret, nil
}

// AccessSecret reads a secret from Secret Manager using the given client and
// validates that it was not corrupted during retrieval. The secretResourceName
// should be in the format: 'projects/*/secrets/*/versions/*'.
func AccessSecret(ctx context.Context, client *secretmanager.Client, secretResourceName string) (string, error) {
	req := secretmanagerpb.AccessSecretVersionRequest{
		Name: secretResourceName,
	}
	result, err := client.AccessSecretVersion(ctx, &req)
	if err != nil {
		return "", fmt.Errorf("failed to get secret version for %q: %w", secretResourceName, err)
	}
	crc32c := crc32.MakeTable(crc32.Castagnoli)
	checksum := int64(crc32.Checksum(result.Payload.Data, crc32c))
	if checksum != *result.Payload.DataCrc32C {
		return "", fmt.Errorf("failed to get secret version for %q: data corrupted", secretResourceName)
	}
	return string(result.Payload.Data), nil
}

// ParsePrivateKey parses a PEM encoded RSA private key, accepting
// either PKCS1 ("RSA PRIVATE KEY") or PKCS8 ("PRIVATE KEY") blocks
// since GitHub App keys are commonly distributed in either form.
func ParsePrivateKey(privateKeyContent string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyContent))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS1 private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS8 private key is not an RSA key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}
