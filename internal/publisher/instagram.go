package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"postqueue/internal/models"
)

type instagramAdapter struct {
	client *http.Client
}

func (a *instagramAdapter) Platform() string {
	return models.PlatformInstagram
}

// Publish runs the Graph two-step: create a media container, then publish it.
func (a *instagramAdapter) Publish(ctx context.Context, account *models.SocialAccount, accessToken string, content *Content) (string, error) {
	if content.ImageURL == "" {
		return "", NewError(KindUnsupportedPlatform, "instagram posts require an image")
	}

	mediaURL := fmt.Sprintf("https://graph.instagram.com/v21.0/%s/media", account.AccountID)
	payload := map[string]any{
		"image_url":    content.ImageURL,
		"caption":      content.Body,
		"access_token": accessToken,
	}

	respBody, err := postJSON(ctx, a.client, mediaURL, payload, nil)
	if err != nil {
		return "", err
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &container); err != nil {
		return "", WrapError(KindTransientNetwork, "error parsing Instagram response", err)
	}
	if container.ID == "" {
		return "", NewError(KindTransientNetwork, "no media ID returned from Instagram")
	}

	publishURL := fmt.Sprintf("https://graph.instagram.com/v21.0/%s/media_publish", account.AccountID)
	respBody, err = postJSON(ctx, a.client, publishURL, map[string]string{
		"creation_id":  container.ID,
		"access_token": accessToken,
	}, nil)
	if err != nil {
		return "", err
	}

	var published struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &published); err != nil {
		return "", WrapError(KindTransientNetwork, "error parsing Instagram publish response", err)
	}
	if published.ID == "" {
		return "", NewError(KindTransientNetwork, "no post ID returned from Instagram")
	}

	return published.ID, nil
}
