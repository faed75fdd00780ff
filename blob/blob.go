// Package blob talks to the remote object store that holds shared files. The
// service never proxies file bytes: it only hands out one-time upload
// credentials and deletes objects by public ID when they expire.
package blob

import (
	"context"
	"errors"
	"path"
	"strings"
)

// DefaultFolder is the upload folder credentials are scoped to.
const DefaultFolder = "temp_shares"

// MaxUploadSize is the hard cap on a shared file.
const MaxUploadSize int64 = 1 << 30

var (
	// ErrNotConfigured is returned when no blob provider has been configured.
	ErrNotConfigured = errors.New("blob store not configured")
	// ErrObjectNotFound is returned by providers that can tell the object is missing.
	ErrObjectNotFound = errors.New("blob object not found")
)

// CredentialRequest describes the upload a client is about to perform.
type CredentialRequest struct {
	FileName    string `json:"fileName"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Credentials let a client upload one object directly to the provider.
// Signature-style providers fill Signature/APIKey/CloudName; presigned-URL
// providers fill UploadURL/Method and already know the object's PublicID.
type Credentials struct {
	Signature string `json:"signature,omitempty"`
	Timestamp int64  `json:"timestamp"`
	CloudName string `json:"cloudName,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	Folder    string `json:"folder"`
	UploadURL string `json:"uploadUrl,omitempty"`
	Method    string `json:"method,omitempty"`
	PublicID  string `json:"publicId,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Store issues upload credentials and deletes uploaded objects.
type Store interface {
	Credentials(ctx context.Context, req CredentialRequest) (Credentials, error)
	// Delete removes the object. Providers that can detect a missing object
	// report ErrObjectNotFound so the caller logs the leak.
	Delete(ctx context.Context, publicID string) error
}

// Disabled is the Store used when no provider is configured.
type Disabled struct{}

func (Disabled) Credentials(context.Context, CredentialRequest) (Credentials, error) {
	return Credentials{}, ErrNotConfigured
}

func (Disabled) Delete(context.Context, string) error {
	return ErrNotConfigured
}

// extOf returns a short, safe lowercase extension of name, or "".
func extOf(name string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
