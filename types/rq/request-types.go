// Package rq holds request body and query types for the HTTP API.
package rq

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/lumen-search/backend/pkg/services/llm"
)

type ChatV1 struct {
	UserID         string          `json:"userID"`
	Prompt         string          `json:"prompt"`
	Model          llm.ServiceName `json:"model,omitempty"`
	ConversationID int64           `json:"conversationID,omitempty"`
}

type SearchV1 struct {
	UserID     string `json:"userID"`
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
}

type TTSV1 struct {
	UserID  string `json:"userID"`
	Text    string `json:"text"`
	VoiceID string `json:"voiceID,omitempty"`
}

type ProStatusV1 struct {
	UserID   string `json:"userID"`
	Email    string `json:"email"`
	Version  string `json:"version"`
	DeviceID string `json:"deviceId"`
}

func (b *ProStatusV1) FromQuery(r *http.Request) error {
	uid := r.URL.Query().Get("userID")
	if uid == "" {
		return errors.New("userID is required")
	}
	b.UserID = uid
	b.Email = r.URL.Query().Get("email")
	b.Version = r.URL.Query().Get("version")
	b.DeviceID = r.URL.Query().Get("deviceID")
	if b.DeviceID == "" {
		b.DeviceID = r.URL.Query().Get("deviceId")
	}
	return nil
}

type ConversationsV1 struct {
	UserID string
	Limit  int
	Cursor int64
}

func (c *ConversationsV1) FromQuery(r *http.Request) error {
	uid := r.URL.Query().Get("userID")
	if uid == "" {
		return errors.New("userID is required")
	}
	c.UserID = uid
	c.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if c.Limit <= 0 || c.Limit > 100 {
		c.Limit = 20
	}
	c.Cursor, _ = strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64)
	return nil
}

type FeedbackV1 struct {
	UserID   string `json:"userID"`
	DeviceID string `json:"deviceID"`
	Version  string `json:"version"`
	Type     string `json:"type"`
	Feedback string `json:"feedback"`
}

func (f *FeedbackV1) FromForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	f.UserID = r.FormValue("userID")
	if f.UserID == "" {
		return errors.New("userID is required")
	}
	f.DeviceID = r.FormValue("deviceID")
	f.Version = r.FormValue("version")
	f.Type = r.FormValue("type")
	switch f.Type {
	case "bug", "feature-request", "other":
	default:
		f.Type = "other"
	}
	f.Feedback = r.FormValue("feedback")
	if f.Feedback == "" {
		return errors.New("feedback is required")
	}
	return nil
}
