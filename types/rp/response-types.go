// Package rp holds response body types for the HTTP API.
package rp

import (
	"time"

	"github.com/lumen-search/backend/pkg/services/userdata"
	"github.com/lumen-search/backend/pkg/utils/numfmt"
)

type UsageV1 struct {
	Requests             int64  `json:"requests"`
	TotalTokens          int64  `json:"totalTokens"`
	TotalTokensFormatted string `json:"totalTokensFormatted"`
	Searches             int64  `json:"searches"`
}

type ProStatusV1 struct {
	Pro               bool       `json:"pro"`
	Plan              string     `json:"plan"`
	PlanPrice         string     `json:"planPrice,omitempty"`
	Status            string     `json:"status,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd,omitempty"`
	FreeRequestsLeft  int64      `json:"freeRequestsLeft"`
	Usage             UsageV1    `json:"usage"`
}

// ProStatusFromUserData shapes the cached snapshot into the API response.
func ProStatusFromUserData(d userdata.ComprehensiveUserData) ProStatusV1 {
	rsp := ProStatusV1{
		Pro:              d.Pro,
		Plan:             d.Plan,
		Status:           d.Status,
		FreeRequestsLeft: d.FreeRequestsLeft,
		Usage: UsageV1{
			Requests:             d.Usage.Requests,
			TotalTokens:          d.Usage.TotalTokens,
			TotalTokensFormatted: numfmt.LargeNumber(d.Usage.TotalTokens),
			Searches:             d.Usage.Searches,
		},
	}
	switch d.Plan {
	case "pro-monthly":
		rsp.PlanPrice = numfmt.USD(9.99)
	case "pro-yearly":
		rsp.PlanPrice = numfmt.USD(99.99)
	}
	if !d.CurrentPeriodEnd.IsZero() {
		end := d.CurrentPeriodEnd
		rsp.CurrentPeriodEnd = &end
		rsp.CancelAtPeriodEnd = d.CancelAtPeriodEnd
	}
	return rsp
}

type ConversationV1 struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ConversationsV1 struct {
	Conversations []ConversationV1 `json:"conversations"`
	HasMore       bool             `json:"hasMore"`
	NextCursor    int64            `json:"nextCursor,omitempty"`
}

type MessageV1 struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	ToolName  string    `json:"toolName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessagesV1 struct {
	ConversationID int64       `json:"conversationID"`
	Messages       []MessageV1 `json:"messages"`
}

type TTSV1 struct {
	URL     string  `json:"url"`
	Key     string  `json:"key"`
	Seconds float64 `json:"seconds"`
}

type SignedURLV1 struct {
	SignedURL string `json:"signedURL"`
}
