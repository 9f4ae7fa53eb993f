package graph

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/blacktop/metapost/internal/metapost"
)

// Page is an entry of /me/accounts.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// Pages is the /me/accounts response.
type Pages struct {
	Data []Page `json:"data"`
}

// PageLink is the response of /{page-id}?fields=instagram_business_account.
type PageLink struct {
	ID                       string `json:"id"`
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

// Photo is the response of /{page-id}/photos.
type Photo struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Image is one rendition of an uploaded photo.
type Image struct {
	Height int    `json:"height"`
	Width  int    `json:"width"`
	Source string `json:"source"`
}

// PhotoImages is the response of /{photo-id}?fields=images.
type PhotoImages struct {
	ID     string  `json:"id"`
	Images []Image `json:"images"`
}

// Largest returns the URL of the biggest rendition.
func (p PhotoImages) Largest() string {
	best := -1
	area := -1
	for i, img := range p.Images {
		if img.Source == "" {
			continue
		}
		if a := img.Width * img.Height; a > area {
			best, area = i, a
		}
	}
	if best < 0 {
		return ""
	}
	return p.Images[best].Source
}

type objectID struct {
	ID string `json:"id"`
}

// ErrEmptyID is returned when the API answers without the id a later step depends on.
var ErrEmptyID = errors.New("response did not include an id")

// PostFeed publishes a text post to the page feed.
func (c *Client) PostFeed(ctx context.Context, pageID, token, message string) (string, error) {
	params := url.Values{}
	params.Set("message", message)
	params.Set("access_token", token)

	var out objectID
	if err := c.PostForm(ctx, pageID+"/feed", params, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", ErrEmptyID
	}
	return out.ID, nil
}

// PhotoUpload describes a multipart photo upload.
type PhotoUpload struct {
	Image     *metapost.Image
	Caption   string
	Published bool
}

// UploadPhoto uploads an image to the page. Unpublished uploads stay off the feed
// and only serve as hosting for a later instagram container.
func (c *Client) UploadPhoto(ctx context.Context, pageID, token string, up PhotoUpload) (Photo, error) {
	fields := map[string]string{
		"access_token": token,
	}
	if up.Caption != "" {
		fields["message"] = up.Caption
	}
	if !up.Published {
		fields["published"] = strconv.FormatBool(false)
	}

	var out Photo
	if err := c.PostMultipart(ctx, pageID+"/photos", fields, up.Image, &out); err != nil {
		return Photo{}, err
	}
	if out.ID == "" {
		return Photo{}, ErrEmptyID
	}
	return out, nil
}

// PhotoURL returns the hosted URL of the largest rendition of an uploaded photo.
func (c *Client) PhotoURL(ctx context.Context, photoID, token string) (string, error) {
	params := url.Values{}
	params.Set("fields", "images")
	params.Set("access_token", token)

	var out PhotoImages
	if err := c.Get(ctx, photoID, params, &out); err != nil {
		return "", err
	}
	src := out.Largest()
	if src == "" {
		return "", errors.New("photo has no hosted images")
	}
	return src, nil
}

// CreateMediaContainer creates an instagram image container and returns its creation id.
func (c *Client) CreateMediaContainer(ctx context.Context, accountID, token, imageURL, caption string) (string, error) {
	body := map[string]string{
		"image_url":    imageURL,
		"caption":      caption,
		"access_token": token,
	}
	var out objectID
	if err := c.PostJSON(ctx, accountID+"/media", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", ErrEmptyID
	}
	return out.ID, nil
}

// PublishMediaContainer publishes a container created by CreateMediaContainer.
func (c *Client) PublishMediaContainer(ctx context.Context, accountID, token, creationID string) (string, error) {
	if creationID == "" {
		return "", ErrEmptyID
	}
	body := map[string]string{
		"creation_id":  creationID,
		"access_token": token,
	}
	var out objectID
	if err := c.PostJSON(ctx, accountID+"/media_publish", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", ErrEmptyID
	}
	return out.ID, nil
}
