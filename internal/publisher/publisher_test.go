package publisher

import (
	"context"
	"strings"
	"testing"
	"time"

	config "postqueue/configs"
	"postqueue/internal/models"
)

func testPublisher() *Publisher {
	return New(config.Config{PublishTimeout: time.Second, SecretKey: "0123456789abcdef"}, nil, nil)
}

func TestComposeMergesHashtags(t *testing.T) {
	content := Compose(&models.PlatformContent{
		Caption:  "launch day",
		Hashtags: []string{"golang", "#release", " ", "ship it"},
	}, 0)

	want := "launch day\n\n#golang #release #ship it"
	if content.Body != want {
		t.Fatalf("unexpected body: %q", content.Body)
	}
}

func TestComposeHashtagsOnly(t *testing.T) {
	content := Compose(&models.PlatformContent{Hashtags: []string{"solo"}}, 0)
	if content.Body != "#solo" {
		t.Fatalf("unexpected body: %q", content.Body)
	}
}

func TestComposeTruncatesByRunes(t *testing.T) {
	content := Compose(&models.PlatformContent{Caption: strings.Repeat("é", 30)}, 10)
	if got := len([]rune(content.Body)); got != 10 {
		t.Fatalf("expected 10 runes after truncation, got %d", got)
	}
}

func TestComposeKeepsMediaURLs(t *testing.T) {
	content := Compose(&models.PlatformContent{
		Title:    "a title",
		ImageURL: "https://cdn.example.com/a.jpg",
		VideoURL: "https://cdn.example.com/a.mp4",
	}, 100)

	if content.Title != "a title" || content.ImageURL == "" || content.VideoURL == "" {
		t.Fatalf("media fields should pass through untouched: %+v", content)
	}
}

func TestPublishUnsupportedPlatform(t *testing.T) {
	p := testPublisher()
	post := &models.Post{ID: 1, Content: map[string]models.PlatformContent{}}

	_, err := p.Publish(context.Background(), post, "linkedin", &models.SocialAccount{AccessToken: "tok"})
	if KindOf(err) != KindUnsupportedPlatform {
		t.Fatalf("expected unsupported_platform, got %v", err)
	}
}

func TestPublishMissingCredentials(t *testing.T) {
	p := testPublisher()
	post := &models.Post{ID: 1, Content: map[string]models.PlatformContent{
		models.PlatformFacebook: {Caption: "hi"},
	}}

	if _, err := p.Publish(context.Background(), post, models.PlatformFacebook, nil); KindOf(err) != KindCredentialsMissing {
		t.Fatalf("nil account: expected credentials_missing, got %v", err)
	}

	empty := &models.SocialAccount{}
	if _, err := p.Publish(context.Background(), post, models.PlatformFacebook, empty); KindOf(err) != KindCredentialsMissing {
		t.Fatalf("empty token: expected credentials_missing, got %v", err)
	}
}

func TestPublishMissingContentBlock(t *testing.T) {
	p := testPublisher()
	post := &models.Post{ID: 7, Content: map[string]models.PlatformContent{
		models.PlatformInstagram: {Caption: "ig only"},
	}}
	account := &models.SocialAccount{AccessToken: "tok"}

	if _, err := p.Publish(context.Background(), post, models.PlatformFacebook, account); KindOf(err) != KindUnsupportedPlatform {
		t.Fatalf("expected unsupported_platform for missing block, got %v", err)
	}
}
