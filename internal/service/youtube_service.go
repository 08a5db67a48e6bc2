package service

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/logger"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const transcriptMaxRetries = 3

// 常见的YouTube链接形式：watch、短链、embed、移动端
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:\?|&|/|$)`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`embed/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`watch\?v=([0-9A-Za-z_-]{11})`),
}

var captionTracksPattern = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

type YouTubeService struct {
	client *http.Client
}

func NewYouTubeService() *YouTubeService {
	return &YouTubeService{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// ExtractVideoID 从各种YouTube链接形式中提取11位视频ID
func (s *YouTubeService) ExtractVideoID(url string) (string, error) {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", errors.New("could not extract video ID from URL, please ensure it's a valid YouTube URL")
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

// FetchTranscript 拉取视频字幕并拼成纯文本，优先英文字幕，最多重试3次
func (s *YouTubeService) FetchTranscript(ctx context.Context, url string) (string, error) {
	videoID, err := s.ExtractVideoID(url)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < transcriptMaxRetries; attempt++ {
		transcript, err := s.fetchOnce(ctx, videoID)
		if err == nil {
			return transcript, nil
		}
		if errors.Is(err, util.ErrNoTranscript) {
			return "", err
		}

		lastErr = err
		logger.Log.Warn("transcript fetch attempt failed",
			zap.String("video_id", videoID), zap.Int("attempt", attempt+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return "", fmt.Errorf("failed to fetch transcript after %d attempts: %w", transcriptMaxRetries, lastErr)
}

func (s *YouTubeService) fetchOnce(ctx context.Context, videoID string) (string, error) {
	tracks, err := s.fetchCaptionTracks(ctx, videoID)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", util.ErrNoTranscript
	}

	// 优先英文，没有就用第一条
	track := tracks[0]
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			track = t
			break
		}
	}

	return s.fetchTimedText(ctx, track.BaseURL)
}

func (s *YouTubeService) fetchCaptionTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID
	req, err := http.NewRequestWithContext(ctx, "GET", watchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en-US,en")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	m := captionTracksPattern.FindSubmatch(body)
	if m == nil {
		return nil, util.ErrNoTranscript
	}

	var tracks []captionTrack
	if err := json.Unmarshal(m[1], &tracks); err != nil {
		return nil, fmt.Errorf("failed to parse caption tracks: %w", err)
	}
	return tracks, nil
}

func (s *YouTubeService) fetchTimedText(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("timedtext returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("failed to parse timedtext: %w", err)
	}

	var sb strings.Builder
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Value))
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}

	if sb.Len() == 0 {
		return "", util.ErrNoTranscript
	}
	return sb.String(), nil
}
