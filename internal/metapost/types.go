package metapost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Target identifies a platform a draft can be published to.
type Target string

const (
	// TargetFacebook is the primary platform: page feed and photos.
	TargetFacebook Target = "facebook"
	// TargetInstagram is the secondary platform reached through a linked business account.
	TargetInstagram Target = "instagram"
)

// Targets lists every target in publish order.
var Targets = []Target{TargetFacebook, TargetInstagram}

// ParseTarget normalizes a user supplied target name.
func ParseTarget(raw string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(raw))); t {
	case TargetFacebook, TargetInstagram:
		return t, nil
	}
	return "", fmt.Errorf("unsupported target %q", raw)
}

// Image is an in-memory image attachment.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewImage sniffs data and rejects anything that is not an image.
func NewImage(name string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ValidationError{Reason: fmt.Sprintf("image %q is empty", name)}
	}
	kind, err := filetype.Image(data)
	if err != nil || kind == filetype.Unknown {
		return nil, ValidationError{Reason: fmt.Sprintf("unsupported image type for %q", name)}
	}
	if name == "" {
		name = "image." + kind.Extension
	}
	return &Image{Name: name, ContentType: kind.MIME.Value, Data: data}, nil
}

// LoadImage reads an image from disk.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ValidationError{Reason: fmt.Sprintf("image %q not found", path)}
		}
		return nil, fmt.Errorf("read image: %w", err)
	}
	return NewImage(filepath.Base(path), data)
}

// Resource is a page the authenticated user manages, with its own access token.
type Resource struct {
	ID          string
	Name        string
	AccessToken string
}

// Request defines the payload handed to a single target's poster.
type Request struct {
	Message   string
	Image     *Image
	Page      Resource
	AccountID string
}

// Poster abstracts a platform that can publish content.
type Poster interface {
	Name() Target
	Post(ctx context.Context, req Request) (string, error)
}

// PublishResult is the outcome of publishing to one target.
type PublishResult struct {
	Target   Target
	Success  bool
	RemoteID string
	Err      error
}
