package filter

import (
	"context"

	"github.com/osa030/guildbox/internal/domain/song"
)

// UserPendingConfig represents the configuration for UserPendingFilter.
type UserPendingConfig struct {
	MaxPending int `yaml:"max_pending" mapstructure:"max_pending" default:"3" validate:"gte=1"`
}

// UserPendingFilter limits how many songs one requester may have waiting.
type UserPendingFilter struct {
	config UserPendingConfig
}

// NewUserPendingFilter creates a filter allowing maxPending waiting songs
// per requester.
func NewUserPendingFilter(maxPending int) *UserPendingFilter {
	return &UserPendingFilter{config: UserPendingConfig{MaxPending: maxPending}}
}

func (f *UserPendingFilter) Name() string {
	return "user_pending_filter"
}

func (f *UserPendingFilter) Description() string {
	return "Checks if the requester already has too many songs waiting to be played"
}

func (f *UserPendingFilter) ReturnCodes() []string {
	return []string{"user_pending"}
}

func (f *UserPendingFilter) ValidateConfig(settings map[string]any) error {
	var config UserPendingConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	return nil
}

func (f *UserPendingFilter) Check(ctx context.Context, req Request, s song.Request, snap Snapshot) Result {
	if f.config.MaxPending <= 0 || req.RequestedBy == "" {
		return Accept()
	}

	pending := 0
	for _, q := range snap.Queued {
		if q.RequestedBy == req.RequestedBy {
			pending++
		}
	}
	if pending >= f.config.MaxPending {
		return Reject("user_pending")
	}
	return Accept()
}

func init() {
	Register("user_pending_filter", func() Filter {
		return &UserPendingFilter{}
	})
}
