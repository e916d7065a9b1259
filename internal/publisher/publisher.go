package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	config "postqueue/configs"
	"postqueue/internal/models"
	"postqueue/internal/repository"
	"postqueue/pkg/utils"
)

// Content is the normalized payload handed to a platform adapter: caption and
// hashtags already merged into one text blob and cut to the platform's limit.
type Content struct {
	Title    string
	Body     string
	ImageURL string
	VideoURL string
}

// Adapter performs one external publish call for a single platform family.
type Adapter interface {
	Platform() string
	Publish(ctx context.Context, account *models.SocialAccount, accessToken string, content *Content) (string, error)
}

// captionLimits are the known per-platform text length limits.
var captionLimits = map[string]int{
	models.PlatformFacebook:  63206,
	models.PlatformInstagram: 2200,
	models.PlatformTiktok:    2200,
	models.PlatformYoutube:   5000,
}

// Publisher dispatches normalized publish requests to per-platform adapters.
// It validates credentials, refreshes expiring tokens inline, and on success
// records the external post id on the post for later analytics correlation.
type Publisher struct {
	cfg      config.Config
	sa       repository.SocialAccountRepository
	pr       repository.PostRepository
	adapters map[string]Adapter
	client   *http.Client
}

func New(cfg config.Config, sa repository.SocialAccountRepository, pr repository.PostRepository) *Publisher {
	client := &http.Client{Timeout: cfg.PublishTimeout}
	p := &Publisher{
		cfg:      cfg,
		sa:       sa,
		pr:       pr,
		adapters: make(map[string]Adapter),
		client:   client,
	}
	p.register(&facebookAdapter{client: client})
	p.register(&instagramAdapter{client: client})
	p.register(&tiktokAdapter{client: client})
	p.register(&youtubeAdapter{client: client})
	return p
}

func (p *Publisher) register(a Adapter) {
	p.adapters[a.Platform()] = a
}

func (p *Publisher) Publish(ctx context.Context, post *models.Post, platform string, account *models.SocialAccount) (string, error) {
	adapter, ok := p.adapters[platform]
	if !ok {
		return "", NewError(KindUnsupportedPlatform, fmt.Sprintf("platform %q is not supported", platform))
	}

	if account == nil || account.AccessToken == "" {
		return "", NewError(KindCredentialsMissing, fmt.Sprintf("no %s account connected", platform))
	}

	block, ok := post.Content[platform]
	if !ok {
		return "", NewError(KindUnsupportedPlatform, fmt.Sprintf("post %d has no content for %s", post.ID, platform))
	}

	accessToken, err := p.freshToken(ctx, account)
	if err != nil {
		return "", err
	}

	content := Compose(&block, captionLimits[platform])

	externalID, err := adapter.Publish(ctx, account, accessToken, content)
	if err != nil {
		return "", err
	}

	// Metrics correlation write. Best-effort: a failure here is logged and
	// must not fail a publish that already succeeded upstream.
	if err := p.pr.SetExternalPostID(ctx, post.ID, platform, externalID); err != nil {
		slog.Info(fmt.Sprintf("failed to record external id for post %d on %s: %v", post.ID, platform, err))
	}

	return externalID, nil
}

// freshToken decrypts the stored access token, refreshing it first when it is
// about to expire. Refresh failures fall back to the current token; the
// publish call itself will surface the real classification.
func (p *Publisher) freshToken(ctx context.Context, account *models.SocialAccount) (string, error) {
	if !account.TokenExpiresAt.IsZero() && time.Until(account.TokenExpiresAt) < 2*time.Minute {
		if err := p.refreshToken(ctx, account); err != nil {
			slog.Info(fmt.Sprintf("token refresh for account %d failed: %v", account.ID, err))
		}
	}

	accessToken, err := utils.Decrypt(account.AccessToken, []byte(p.cfg.SecretKey))
	if err != nil {
		return "", WrapError(KindCredentialsMissing, "stored access token is unreadable", err)
	}
	return accessToken, nil
}

// Compose merges caption and hashtags into one text blob, truncated to the
// platform limit. Hashtags missing their # are prefixed.
func Compose(block *models.PlatformContent, limit int) *Content {
	body := block.Caption
	if len(block.Hashtags) > 0 {
		tags := make([]string, 0, len(block.Hashtags))
		for _, tag := range block.Hashtags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if !strings.HasPrefix(tag, "#") {
				tag = "#" + tag
			}
			tags = append(tags, tag)
		}
		if len(tags) > 0 {
			if body != "" {
				body += "\n\n"
			}
			body += strings.Join(tags, " ")
		}
	}

	if limit > 0 {
		if runes := []rune(body); len(runes) > limit {
			body = string(runes[:limit])
		}
	}

	return &Content{
		Title:    block.Title,
		Body:     body,
		ImageURL: block.ImageURL,
		VideoURL: block.VideoURL,
	}
}

// postJSON runs one JSON round trip and classifies transport and HTTP-level
// failures. Adapters decode the returned body themselves.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(KindTransientNetwork, "error marshalling payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, WrapError(KindTransientNetwork, "error creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, WrapError(KindTransientNetwork, "HTTP request error", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(KindTransientNetwork, "error reading response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := classifyStatus(resp.StatusCode)
		return nil, NewError(kind, fmt.Sprintf("unexpected status code %d: %s", resp.StatusCode, truncateBody(respBody)))
	}

	return respBody, nil
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
