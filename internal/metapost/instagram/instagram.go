package instagram

import (
	"context"
	"fmt"

	"github.com/blacktop/metapost/internal/logutil"
	"github.com/blacktop/metapost/internal/metapost"
	"github.com/blacktop/metapost/internal/metapost/graph"
)

const providerName = metapost.TargetInstagram

// Publish steps, in order.
const (
	StepUpload    = "upload image"
	StepHostedURL = "get image url"
	StepContainer = "create container"
	StepPublish   = "publish container"
)

// Client implements the Poster interface for an instagram business account.
type Client struct {
	api *graph.Client
}

// New constructs an instagram poster.
func New(api *graph.Client) *Client {
	return &Client{api: api}
}

// Name identifies the provider.
func (c *Client) Name() metapost.Target { return providerName }

// Post runs the two-phase container publish. The image is hosted by uploading
// it unpublished to the linked page, then referenced by URL from the container.
func (c *Client) Post(ctx context.Context, req metapost.Request) (string, error) {
	if req.Image == nil {
		return "", metapost.ValidationError{Provider: string(providerName), Reason: "an image is required for posting"}
	}
	if req.AccountID == "" || req.Page.ID == "" || req.Page.AccessToken == "" {
		return "", metapost.ErrNoLinkedAccount
	}
	token := req.Page.AccessToken

	logutil.Debugf("hosting image: page_id=%s bytes=%d", req.Page.ID, len(req.Image.Data))
	photo, err := c.api.UploadPhoto(ctx, req.Page.ID, token, graph.PhotoUpload{Image: req.Image})
	if err != nil {
		return "", c.stepErr(StepUpload, err)
	}
	imageURL, err := c.api.PhotoURL(ctx, photo.ID, token)
	if err != nil {
		return "", c.stepErr(StepHostedURL, err)
	}
	logutil.Debugf("image hosted: photo_id=%s", photo.ID)

	creationID, err := c.api.CreateMediaContainer(ctx, req.AccountID, token, imageURL, req.Message)
	if err != nil {
		return "", c.stepErr(StepContainer, err)
	}
	logutil.Debugf("container created: creation_id=%s", creationID)

	mediaID, err := c.api.PublishMediaContainer(ctx, req.AccountID, token, creationID)
	if err != nil {
		return "", c.stepErr(StepPublish, err)
	}
	logutil.Debugf("container published: media_id=%s", mediaID)

	return mediaID, nil
}

func (c *Client) stepErr(step string, err error) error {
	return &metapost.StepError{Target: providerName, Step: step, Err: err}
}

// Plan describes the calls Post would make, for dry runs.
func (c *Client) Plan(req metapost.Request) []string { return Plan(req) }

// Plan describes the calls a poster would make for req.
func Plan(req metapost.Request) []string {
	page, account := req.Page.ID, req.AccountID
	if page == "" {
		page = "{page-id}"
	}
	if account == "" {
		account = "{ig-user-id}"
	}
	return []string{
		fmt.Sprintf("POST /%s/photos (published=false)", page),
		"GET /{photo-id}?fields=images",
		fmt.Sprintf("POST /%s/media (image_url, caption)", account),
		fmt.Sprintf("POST /%s/media_publish (creation_id)", account),
	}
}
