package facebook

import (
	"context"
	"fmt"
	"strings"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/graph"
)

const providerName = metapost.TargetFacebook

// Client implements the Poster interface for a facebook page.
type Client struct {
	api *graph.Client
}

// New constructs a facebook poster.
func New(api *graph.Client) *Client {
	return &Client{api: api}
}

// Name returns the provider identifier.
func (c *Client) Name() metapost.Target { return providerName }

// Post publishes the message to the page feed, or as a photo when an image is attached.
func (c *Client) Post(ctx context.Context, req metapost.Request) (string, error) {
	if req.Page.ID == "" || req.Page.AccessToken == "" {
		return "", metapost.ErrNoPrimaryResource
	}

	if req.Image == nil {
		if strings.TrimSpace(req.Message) == "" {
			return "", metapost.ValidationError{Provider: string(providerName), Reason: "text posts need a message"}
		}
		logutil.Debugf("posting to feed: page_id=%s", req.Page.ID)
		id, err := c.api.PostFeed(ctx, req.Page.ID, req.Page.AccessToken, req.Message)
		if err != nil {
			return "", &metapost.StepError{Target: providerName, Step: "post to feed", Err: err}
		}
		logutil.Debugf("feed post created: id=%s", id)
		return id, nil
	}

	logutil.Debugf("uploading photo: page_id=%s bytes=%d", req.Page.ID, len(req.Image.Data))
	photo, err := c.api.UploadPhoto(ctx, req.Page.ID, req.Page.AccessToken, graph.PhotoUpload{
		Image:     req.Image,
		Caption:   req.Message,
		Published: true,
	})
	if err != nil {
		return "", &metapost.StepError{Target: providerName, Step: "upload photo", Err: err}
	}
	logutil.Debugf("photo posted: photo_id=%s post_id=%s", photo.ID, photo.PostID)

	if photo.PostID != "" {
		return photo.PostID, nil
	}
	return photo.ID, nil
}

// Plan describes the calls Post would make, for dry runs.
func (c *Client) Plan(req metapost.Request) []string { return Plan(req) }

// Plan describes the calls a poster would make for req.
func Plan(req metapost.Request) []string {
	if req.Image == nil {
		return []string{fmt.Sprintf("POST /%s/feed (message)", pageRef(req))}
	}
	return []string{fmt.Sprintf("POST /%s/photos (source=%s, message)", pageRef(req), req.Image.Name)}
}

func pageRef(req metapost.Request) string {
	if req.Page.ID == "" {
		return "{page-id}"
	}
	return req.Page.ID
}
