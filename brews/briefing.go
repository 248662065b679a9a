package brews

import (
	"fmt"
	"strings"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/users"
)

const (
	DefaultBriefingLimit = 20
	MaxBriefingLimit     = 100
)

// Briefing is one delivered (or pending) edition of a brew
type Briefing struct {
	ID             string          `json:"id"`
	EditorialID    string          `json:"editorial_id,omitempty"`
	BrewID         string          `json:"brew_id"`
	UserID         string          `json:"user_id,omitempty"`
	Status         string          `json:"status,omitempty"`
	Subject        string          `json:"subject,omitempty"`
	DeliveryStatus string          `json:"delivery_status,omitempty"`
	ArticleCount   int             `json:"article_count"`
	CreatedAt      users.Timestamp `json:"created_at"`
	UpdatedAt      users.Timestamp `json:"updated_at"`
	SentAt         users.Timestamp `json:"sent_at"`
	BrewInfo       *BrewInfo       `json:"brew_info,omitempty"`
	UserInfo       *UserInfo       `json:"user_info,omitempty"`
	Content        string          `json:"content,omitempty"`  // Only with GetBriefingOptions.IncludeContent
	Articles       []Article       `json:"articles,omitempty"` // Only with GetBriefingOptions.IncludeArticles
}

type BrewInfo struct {
	ID           string          `json:"id"`
	DeliveryTime string          `json:"delivery_time,omitempty"`
	Timezone     string          `json:"timezone,omitempty"`
	LastSentDate users.Timestamp `json:"last_sent_date"`
}

type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Article is a curated story inside a briefing. Position is 1-based.
type Article struct {
	Position    int    `json:"position"`
	Headline    string `json:"headline"`
	Source      string `json:"source,omitempty"`
	OriginalURL string `json:"original_url,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// BriefingPage is one page of a brew's briefings
type BriefingPage struct {
	Briefings  []Briefing `json:"briefings"`
	TotalCount int        `json:"total_count"`
}

type ListBriefingsOptions struct {
	BrewID string
	Limit  int
	Offset int
}

// Normalize clamps the paging values the way the backend does
func (o ListBriefingsOptions) Normalize() ListBriefingsOptions {
	o.BrewID = strings.TrimSpace(o.BrewID)
	if o.Limit <= 0 {
		o.Limit = DefaultBriefingLimit
	}
	o.Limit = min(o.Limit, MaxBriefingLimit)
	o.Offset = max(o.Offset, 0)
	return o
}

func (o ListBriefingsOptions) Validate() error {
	if strings.TrimSpace(o.BrewID) == "" {
		return fmt.Errorf("brew_id is required: %w", brewerrors.ErrInvalidRequest)
	}
	return nil
}

type GetBriefingOptions struct {
	IncludeContent  bool
	IncludeArticles bool
}
