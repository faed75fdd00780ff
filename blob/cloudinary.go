package blob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// resourceTypes are the buckets an /auto/upload can land in.
var resourceTypes = []string{"image", "video", "raw"}

// CloudinaryConfig holds the account credentials for Cloudinary signed uploads.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// ResourceType is tried first on delete; the remaining types follow.
	ResourceType string
	// BaseURL overrides the API host, mainly for tests.
	BaseURL string
}

// CloudinaryStore signs direct uploads and deletes through the destroy API.
type CloudinaryStore struct {
	cfg CloudinaryConfig
	cld *cloudinary.Cloudinary
	now func() time.Time
}

// NewCloudinaryStore validates cfg and returns a store.
func NewCloudinaryStore(cfg CloudinaryConfig) (*CloudinaryStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: cloudinary cloud name, api key and secret are required", ErrNotConfigured)
	}
	if cfg.Folder == "" {
		cfg.Folder = DefaultFolder
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	if cfg.BaseURL != "" {
		cld.Config.API.UploadPrefix = strings.TrimRight(cfg.BaseURL, "/")
	}
	cld.Config.API.Timeout = 10
	return &CloudinaryStore{cfg: cfg, cld: cld, now: time.Now}, nil
}

func (c *CloudinaryStore) Credentials(_ context.Context, _ CredentialRequest) (Credentials, error) {
	ts := c.now().Unix()
	sig, err := api.SignParameters(url.Values{
		"folder":    {c.cfg.Folder},
		"timestamp": {strconv.FormatInt(ts, 10)},
	}, c.cfg.APISecret)
	if err != nil {
		return Credentials{}, fmt.Errorf("sign upload: %w", err)
	}
	return Credentials{
		Signature: sig,
		Timestamp: ts,
		CloudName: c.cfg.CloudName,
		APIKey:    c.cfg.APIKey,
		Folder:    c.cfg.Folder,
		UploadURL: fmt.Sprintf("%s/%s/auto/upload", api.BaseURL(c.cld.Config.API.UploadPrefix, ""), c.cfg.CloudName),
		Method:    http.MethodPost,
	}, nil
}

// Delete destroys publicID. Auto uploads are stored as image, video or raw
// and destroy needs the right one, so each type is tried until one reports ok.
func (c *CloudinaryStore) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return fmt.Errorf("empty public id")
	}
	for _, rt := range c.deleteOrder() {
		res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
			PublicID:     publicID,
			ResourceType: rt,
		})
		if err != nil {
			return fmt.Errorf("destroy %s (%s): %w", publicID, rt, err)
		}
		if res.Error.Message != "" {
			return fmt.Errorf("destroy %s (%s): %s", publicID, rt, res.Error.Message)
		}
		switch res.Result {
		case "ok":
			return nil
		case "not found":
			continue
		default:
			return fmt.Errorf("destroy %s (%s): unexpected result %q", publicID, rt, res.Result)
		}
	}
	return fmt.Errorf("%w: %s", ErrObjectNotFound, publicID)
}

func (c *CloudinaryStore) deleteOrder() []string {
	order := make([]string, 0, len(resourceTypes))
	if c.cfg.ResourceType != "" && c.cfg.ResourceType != "auto" {
		order = append(order, c.cfg.ResourceType)
	}
	for _, rt := range resourceTypes {
		if rt != c.cfg.ResourceType {
			order = append(order, rt)
		}
	}
	return order
}
