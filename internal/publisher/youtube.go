package publisher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
	"postqueue/internal/models"
)

type youtubeAdapter struct {
	client *http.Client
}

func (a *youtubeAdapter) Platform() string {
	return models.PlatformYoutube
}

// Publish downloads the video from object storage and uploads it through the
// YouTube Data API. Returns the video id.
func (a *youtubeAdapter) Publish(ctx context.Context, account *models.SocialAccount, accessToken string, content *Content) (string, error) {
	if content.VideoURL == "" {
		return "", NewError(KindUnsupportedPlatform, "youtube posts require a video")
	}

	token := &oauth2.Token{AccessToken: accessToken}
	oauthClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	service, err := youtube.NewService(ctx, option.WithHTTPClient(oauthClient))
	if err != nil {
		return "", WrapError(KindTransientNetwork, "error creating YouTube service", err)
	}

	tempFile, err := a.downloadVideo(ctx, content.VideoURL)
	if err != nil {
		return "", err
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		return "", WrapError(KindTransientNetwork, "error opening video file", err)
	}
	defer file.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       content.Title,
			Description: content.Body,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(file).Do()
	if err != nil {
		return "", WrapError(KindPermissionDenied, "error uploading video to YouTube", err)
	}

	return response.Id, nil
}

func (a *youtubeAdapter) downloadVideo(ctx context.Context, videoURL string) (string, error) {
	tempFile, err := os.CreateTemp("", "video-*.mp4")
	if err != nil {
		return "", WrapError(KindTransientNetwork, "error creating temporary file", err)
	}
	defer tempFile.Close()

	req, err := http.NewRequestWithContext(ctx, "GET", videoURL, nil)
	if err != nil {
		return "", WrapError(KindTransientNetwork, "error creating download request", err)
	}

	response, err := a.client.Do(req)
	if err != nil {
		return "", WrapError(KindTransientNetwork, "error downloading video", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", NewError(classifyStatus(response.StatusCode), fmt.Sprintf("unexpected response status %d downloading video", response.StatusCode))
	}

	if _, err := io.Copy(tempFile, response.Body); err != nil {
		return "", WrapError(KindTransientNetwork, "error saving video to temporary file", err)
	}

	return tempFile.Name(), nil
}
