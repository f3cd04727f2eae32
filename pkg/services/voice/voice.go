// Package voice synthesizes speech through ElevenLabs and mints signed URLs
// for the realtime voice agent.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/filestorage"
)

const elevenBaseURL = "https://api.elevenlabs.io"

// DefaultVoiceID is the Lumen voice used when the client doesn't pick one.
const DefaultVoiceID = "EXAVITQu4vr4xnSDxMaL"

// Roughly 15 characters of English per second of synthesized speech.
// Used to estimate billable audio duration without decoding the clip.
const charsPerSecond = 15

type Service struct {
	baseURL string
	fs      *filestorage.Client
}

func NewService(fs *filestorage.Client) *Service {
	return &Service{baseURL: elevenBaseURL, fs: fs}
}

type Synthesis struct {
	// Key is the storage object key of the uploaded clip.
	Key string
	// URL is a presigned playback URL.
	URL string
	// Seconds is the estimated audio duration, for usage receipts.
	Seconds float64
}

// Synthesize converts text to speech, stores the clip, and returns a
// presigned playback URL.
func (s *Service) Synthesize(ctx context.Context, userID, text, voiceID string) (*Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_turbo_v2_5",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST",
		s.baseURL+"/v1/text-to-speech/"+url.PathEscape(voiceID), strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", secr.ELEVENLABS_API_KEY.String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("text to speech failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("text to speech returned status code %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	key, err := s.fs.PutAudio(ctx, userID, audio, "audio/mpeg")
	if err != nil {
		return nil, err
	}
	playback, err := s.fs.PresignURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Synthesis{
		Key:     key,
		URL:     playback,
		Seconds: float64(utf8.RuneCountInString(text)) / charsPerSecond,
	}, nil
}

// SignedURL mints a single-use WebSocket URL for the realtime voice agent.
// Not cached: each voice session needs its own URL.
func (s *Service) SignedURL(ctx context.Context) (string, error) {
	q := url.Values{"agent_id": {envs.VOICE_AGENT_ID}}
	req, err := http.NewRequestWithContext(ctx, "GET",
		s.baseURL+"/v1/convai/conversation/get_signed_url?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", secr.ELEVENLABS_API_KEY.String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get signed url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signed url request returned status code %d", resp.StatusCode)
	}
	var out struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode signed url response: %w", err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signed url in response")
	}
	return out.SignedURL, nil
}
