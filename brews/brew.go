// Package brews holds the news-digest resources served by the backend: brews, briefings and feedback.
package brews

import (
	"fmt"
	"strings"
	"time"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/internal/utils"
	"github.com/jrsteele09/go-brew-client/users"
)

const (
	MaxNameLength = 255
	MaxTopics     = 10
)

var deliveryTimeLayouts = []string{"15:04", "15:04:05"}

// Brew is a scheduled digest: a set of topics delivered daily at DeliveryTime in the user's timezone.
type Brew struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Topics        []string        `json:"topics"`
	DeliveryTime  string          `json:"delivery_time"`
	ArticleCount  int             `json:"article_count,omitempty"`
	CreatedAt     users.Timestamp `json:"created_at"`
	IsActive      bool            `json:"is_active"`
	BriefingsSent int             `json:"briefings_sent"`
}

type CreateRequest struct {
	Name         string   `json:"name"`
	Topics       []string `json:"topics"`
	DeliveryTime string   `json:"delivery_time"`
}

// Created is the backend's acknowledgement of a new brew
type Created struct {
	Message      string   `json:"message"`
	BrewID       string   `json:"brew_id"`
	Name         string   `json:"name"`
	Topics       []string `json:"topics"`
	DeliveryTime string   `json:"delivery_time"`
}

// Normalize trims the name and delivery time and drops blank topics
func (r CreateRequest) Normalize() CreateRequest {
	return CreateRequest{
		Name:         strings.TrimSpace(r.Name),
		Topics:       utils.CompactStrings(r.Topics),
		DeliveryTime: strings.TrimSpace(r.DeliveryTime),
	}
}

// Validate applies the same rules as the backend so obvious mistakes never leave the process
func (r CreateRequest) Validate() error {
	r = r.Normalize()
	switch {
	case r.Name == "":
		return fmt.Errorf("brew name is required: %w", brewerrors.ErrInvalidRequest)
	case len(r.Name) > MaxNameLength:
		return fmt.Errorf("brew name too long (max %d): %w", MaxNameLength, brewerrors.ErrInvalidRequest)
	case r.DeliveryTime == "":
		return fmt.Errorf("delivery time is required: %w", brewerrors.ErrInvalidRequest)
	case len(r.Topics) == 0:
		return fmt.Errorf("at least one topic is required: %w", brewerrors.ErrInvalidRequest)
	case len(r.Topics) > MaxTopics:
		return fmt.Errorf("maximum %d topics allowed: %w", MaxTopics, brewerrors.ErrInvalidRequest)
	}
	if _, err := ParseDeliveryTime(r.DeliveryTime); err != nil {
		return err
	}
	return nil
}

// ParseDeliveryTime parses an HH:MM (or HH:MM:SS) wall-clock time into an offset from midnight
func ParseDeliveryTime(s string) (time.Duration, error) {
	for _, layout := range deliveryTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("delivery time %q must be HH:MM: %w", s, brewerrors.ErrInvalidRequest)
}
