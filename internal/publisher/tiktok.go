package publisher

import (
	"context"
	"encoding/json"
	"net/http"

	"postqueue/internal/models"
)

type tiktokAdapter struct {
	client *http.Client
}

func (a *tiktokAdapter) Platform() string {
	return models.PlatformTiktok
}

// Publish sends a photo post through the TikTok content init endpoint.
// The returned publish_id identifies the post for later status lookups.
func (a *tiktokAdapter) Publish(ctx context.Context, account *models.SocialAccount, accessToken string, content *Content) (string, error) {
	if content.ImageURL == "" {
		return "", NewError(KindUnsupportedPlatform, "tiktok posts require an image")
	}

	payload := map[string]any{
		"post_info": map[string]any{
			"title":         content.Title,
			"description":   content.Body,
			"privacy_level": "PUBLIC_TO_EVERYONE",
		},
		"source_info": map[string]any{
			"source":            "PULL_FROM_URL",
			"photo_cover_index": 0,
			"photo_images":      []string{content.ImageURL},
		},
		"post_mode":  "DIRECT_POST",
		"media_type": "PHOTO",
	}

	respBody, err := postJSON(ctx, a.client, "https://open.tiktokapis.com/v2/post/publish/content/init/", payload, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", WrapError(KindTransientNetwork, "error parsing TikTok response", err)
	}

	if result.Data.PublishID == "" {
		// TikTok reports application-level errors with a 200 status.
		switch result.Error.Code {
		case "access_token_invalid", "scope_not_authorized":
			return "", NewError(KindPermissionDenied, result.Error.Message)
		case "rate_limit_exceeded", "spam_risk_too_many_posts":
			return "", NewError(KindRateLimited, result.Error.Message)
		}
		return "", NewError(KindTransientNetwork, "no publish ID returned from TikTok: "+result.Error.Message)
	}

	return result.Data.PublishID, nil
}
