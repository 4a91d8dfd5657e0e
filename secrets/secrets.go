// Package secrets reads secret payloads from Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "google.golang.org/genproto/googleapis/cloud/secretmanager/v1"
)

type (
	// Service reads secrets by resource name.
	Service interface {
		Read(ctx context.Context, id string) (string, error)
		Close() error
	}

	service struct {
		client *secretmanager.Client
	}
)

var (
	// ErrNilSecretPayload is returned when a secret version has no payload.
	ErrNilSecretPayload = errors.New("nil secret payload")

	// ErrChecksumMismatch is returned when the payload does not match its
	// CRC32C checksum.
	ErrChecksumMismatch = errors.New("secret checksum mismatch")
)

var crc32c = crc32.MakeTable(crc32.Castagnoli)

// NewService connects to Secret Manager with application default credentials.
func NewService(ctx context.Context) (Service, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating secret manager client: %w", err)
	}
	return &service{client}, nil
}

func (s *service) Close() error {
	return s.client.Close()
}

// Read fetches the latest version of a secret. id may name a secret
// ("projects/p/secrets/s") or a specific version.
func (s *service) Read(ctx context.Context, id string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: versionName(id),
	})
	if err != nil {
		return "", fmt.Errorf("error accessing secret version: %w", err)
	}
	return verifyPayload(resp.GetPayload())
}

func versionName(id string) string {
	if strings.Contains(id, "/versions/") {
		return id
	}
	return fmt.Sprintf("%s/versions/latest", id)
}

func verifyPayload(payload *secretmanagerpb.SecretPayload) (string, error) {
	if payload == nil {
		return "", ErrNilSecretPayload
	}
	if payload.DataCrc32C != nil {
		want := payload.GetDataCrc32C()
		got := int64(crc32.Checksum(payload.GetData(), crc32c))
		if want != got {
			return "", fmt.Errorf("%w, want %v, got %v", ErrChecksumMismatch, want, got)
		}
	}
	return string(payload.GetData()), nil
}
