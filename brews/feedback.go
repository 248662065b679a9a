package brews

import (
	"fmt"
	"strings"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
)

type FeedbackType string

const (
	FeedbackOverall FeedbackType = "overall"
	FeedbackArticle FeedbackType = "article"
)

// FeedbackRequest is a like or dislike on a whole briefing or on one of its articles
type FeedbackRequest struct {
	EditorialID     string       `json:"editorial_id"`
	Type            FeedbackType `json:"feedback_type"`
	Like            bool         `json:"like"`
	ArticlePosition *int         `json:"article_position,omitempty"`
	ArticleData     *ArticleData `json:"article_data,omitempty"`
}

// ArticleData identifies the article being rated
type ArticleData struct {
	OriginalURL string `json:"original_url,omitempty"`
	Headline    string `json:"headline,omitempty"`
	Source      string `json:"source,omitempty"`
}

func (r FeedbackRequest) Validate() error {
	if strings.TrimSpace(r.EditorialID) == "" {
		return fmt.Errorf("editorial_id is required: %w", brewerrors.ErrInvalidRequest)
	}
	switch r.Type {
	case FeedbackOverall:
		if r.ArticlePosition != nil {
			return fmt.Errorf("article_position is only valid for article feedback: %w", brewerrors.ErrInvalidRequest)
		}
	case FeedbackArticle:
		if r.ArticlePosition == nil {
			return fmt.Errorf("article_position is required for article feedback: %w", brewerrors.ErrInvalidRequest)
		}
		if *r.ArticlePosition < 0 {
			return fmt.Errorf("article_position must be a non-negative integer: %w", brewerrors.ErrInvalidRequest)
		}
	default:
		return fmt.Errorf(`feedback_type must be "overall" or "article", got %q: %w`, r.Type, brewerrors.ErrInvalidRequest)
	}
	return nil
}

// FeedbackReceipt is the backend's answer to a submitted FeedbackRequest
type FeedbackReceipt struct {
	Message      string       `json:"message"`
	FeedbackID   int64        `json:"feedback_id"`
	EditorialID  string       `json:"editorial_id"`
	FeedbackType FeedbackType `json:"feedback_type"`
	Like         bool         `json:"like"`
	Action       string       `json:"action"`
}

// FeedbackStatus lists the feedback already given on one editorial. Feedback values are "like" or
// "dislike"; nil means none given.
type FeedbackStatus struct {
	EditorialID     string            `json:"editorial_id"`
	OverallFeedback *string           `json:"overall_feedback"`
	Articles        []ArticleFeedback `json:"articles"`
}

type ArticleFeedback struct {
	Position int     `json:"position"`
	Feedback *string `json:"feedback"`
	Title    string  `json:"title,omitempty"`
	Source   string  `json:"source,omitempty"`
}

// Liked reports whether feedback is a like. The second result is false when none was given.
func (a ArticleFeedback) Liked() (bool, bool) {
	if a.Feedback == nil {
		return false, false
	}
	return *a.Feedback == "like", true
}
