package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"postqueue/internal/models"
	"postqueue/pkg/utils"
)

const tiktokTokenURL = "https://open.tiktokapis.com/v2/oauth/token/"

// RefreshAccount refreshes and persists credentials for one account. Used by
// the background refresh job; Publish also refreshes lazily when a token is
// about to expire.
func (p *Publisher) RefreshAccount(ctx context.Context, account *models.SocialAccount) error {
	return p.refreshToken(ctx, account)
}

// refreshToken exchanges the account's refresh token for fresh credentials
// and persists them. The credential-store write is conditional on the old
// access token, so concurrent refreshers cannot clobber each other.
func (p *Publisher) refreshToken(ctx context.Context, account *models.SocialAccount) error {
	var accessToken, refreshToken string
	var expiresAt time.Time
	var err error

	switch account.Platform {
	case models.PlatformInstagram:
		accessToken, refreshToken, expiresAt, err = p.refreshInstagram(ctx, account)
	case models.PlatformFacebook:
		accessToken, refreshToken, expiresAt, err = p.refreshFacebook(ctx, account)
	case models.PlatformTiktok:
		accessToken, refreshToken, expiresAt, err = p.refreshTiktok(ctx, account)
	case models.PlatformYoutube:
		accessToken, refreshToken, expiresAt, err = p.refreshYoutube(ctx, account)
	default:
		return NewError(KindUnsupportedPlatform, fmt.Sprintf("no token refresh for %s", account.Platform))
	}
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(accessToken), []byte(p.cfg.SecretKey))
	if err != nil {
		return err
	}
	encryptedRefreshToken := ""
	if refreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(refreshToken), []byte(p.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	updated := models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: expiresAt,
	}
	if err := p.sa.SetToken(ctx, account.UserID, account.AccessToken, &updated); err != nil {
		return err
	}

	account.AccessToken = encryptedAccessToken
	if encryptedRefreshToken != "" {
		account.RefreshToken = encryptedRefreshToken
	}
	account.TokenExpiresAt = expiresAt
	return nil
}

func (p *Publisher) refreshInstagram(ctx context.Context, account *models.SocialAccount) (string, string, time.Time, error) {
	refreshToken, err := utils.Decrypt(account.RefreshToken, []byte(p.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}

	reqURL := fmt.Sprintf(
		"https://graph.instagram.com/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		url.QueryEscape(refreshToken),
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", "", time.Time{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", "", time.Time{}, err
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", "", time.Time{}, err
	}
	if result.AccessToken == "" {
		return "", "", time.Time{}, fmt.Errorf("instagram refresh returned no token (status %d)", resp.StatusCode)
	}

	expiresAt := time.Now().Add(time.Second * time.Duration(result.ExpiresIn))
	// Instagram long-lived tokens double as their own refresh token.
	return result.AccessToken, result.AccessToken, expiresAt, nil
}

func (p *Publisher) refreshFacebook(ctx context.Context, account *models.SocialAccount) (string, string, time.Time, error) {
	accessToken, err := utils.Decrypt(account.AccessToken, []byte(p.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}

	reqURL := fmt.Sprintf(
		"https://graph.facebook.com/v21.0/oauth/access_token?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		url.QueryEscape(p.cfg.FacebookAppID),
		url.QueryEscape(p.cfg.FacebookAppSecret),
		url.QueryEscape(accessToken),
	)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", "", time.Time{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", time.Time{}, fmt.Errorf("error response from Facebook: %s (status code: %d)", body, resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", "", time.Time{}, err
	}

	expiresAt := time.Now().Add(time.Second * time.Duration(result.ExpiresIn))
	return result.AccessToken, "", expiresAt, nil
}

func (p *Publisher) refreshTiktok(ctx context.Context, account *models.SocialAccount) (string, string, time.Time, error) {
	refreshToken, err := utils.Decrypt(account.RefreshToken, []byte(p.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}

	data := url.Values{}
	data.Set("client_key", p.cfg.TiktokClientKey)
	data.Set("client_secret", p.cfg.TiktokClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, "POST", tiktokTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", time.Time{}, fmt.Errorf("error response from TikTok: %s (status code: %d)", body, resp.StatusCode)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", "", time.Time{}, err
	}

	expiresAt := time.Now().Add(time.Second * time.Duration(result.ExpiresIn))
	return result.AccessToken, result.RefreshToken, expiresAt, nil
}

func (p *Publisher) refreshYoutube(ctx context.Context, account *models.SocialAccount) (string, string, time.Time, error) {
	conf := &oauth2.Config{
		ClientID:     p.cfg.GoogleClientID,
		ClientSecret: p.cfg.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.upload"},
		Endpoint:     google.Endpoint,
	}

	refreshToken, err := utils.Decrypt(account.RefreshToken, []byte(p.cfg.SecretKey))
	if err != nil {
		return "", "", time.Time{}, err
	}

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return "", "", time.Time{}, err
	}

	return token.AccessToken, refreshToken, token.Expiry, nil
}
