package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"postqueue/internal/models"
)

type facebookAdapter struct {
	client *http.Client
}

func (a *facebookAdapter) Platform() string {
	return models.PlatformFacebook
}

// Publish posts a photo (or a plain text update when no image is set) to the
// page identified by the account. Returns the Graph post id.
func (a *facebookAdapter) Publish(ctx context.Context, account *models.SocialAccount, accessToken string, content *Content) (string, error) {
	var reqURL string
	payload := map[string]any{
		"access_token": accessToken,
	}

	if content.ImageURL != "" {
		reqURL = fmt.Sprintf("https://graph.facebook.com/v21.0/%s/photos", account.AccountID)
		payload["url"] = content.ImageURL
		payload["message"] = content.Body
	} else {
		reqURL = fmt.Sprintf("https://graph.facebook.com/v21.0/%s/feed", account.AccountID)
		payload["message"] = content.Body
	}

	respBody, err := postJSON(ctx, a.client, reqURL, payload, nil)
	if err != nil {
		return "", err
	}

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", WrapError(KindTransientNetwork, "error parsing Facebook response", err)
	}

	// Photo uploads return both the photo id and the post id; prefer the
	// post id since analytics looks posts up by it.
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", NewError(KindTransientNetwork, "no post ID returned from Facebook")
	}
	return result.ID, nil
}
