package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"petadopt/internal/model"
	"petadopt/internal/pubsub"
	"petadopt/internal/store"
)

var (
	errNoAuthorizer = errors.New("subscriptions are disabled")
	errClosed       = errors.New("connection closed")
	ErrForbidden    = errors.New("channel not allowed")
)

// ChannelAuthorizer allows adopters their own channel and the channels of
// their requests, and protetores the channels of organizations they belong
// to and of those organizations' requests.
type ChannelAuthorizer struct {
	store store.Store
}

func NewChannelAuthorizer(st store.Store) *ChannelAuthorizer {
	return &ChannelAuthorizer{store: st}
}

func (a *ChannelAuthorizer) CanSubscribe(ctx context.Context, sess model.Session, channel string) error {
	if sess.UserID == "" {
		return fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	switch {
	case strings.HasPrefix(channel, pubsub.AdopterPrefix):
		if strings.TrimPrefix(channel, pubsub.AdopterPrefix) != sess.UserID {
			return fmt.Errorf("%w: %s", ErrForbidden, channel)
		}
		return nil

	case strings.HasPrefix(channel, pubsub.OrganizationPrefix):
		return a.member(ctx, sess, strings.TrimPrefix(channel, pubsub.OrganizationPrefix), channel)

	case strings.HasPrefix(channel, pubsub.AdoptionPrefix):
		id := strings.TrimPrefix(channel, pubsub.AdoptionPrefix)
		req, err := a.store.GetAdoptionRequest(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrForbidden, channel)
		}
		if req.AdopterID == sess.UserID {
			return nil
		}
		return a.member(ctx, sess, req.OrganizationID, channel)

	default:
		return fmt.Errorf("%w: unknown channel %q", ErrForbidden, channel)
	}
}

func (a *ChannelAuthorizer) member(ctx context.Context, sess model.Session, organizationID, channel string) error {
	if sess.Role != model.RoleProtetor {
		return fmt.Errorf("%w: %s", ErrForbidden, channel)
	}
	org, err := a.store.GetOrganization(ctx, organizationID)
	if err != nil || !org.HasMember(sess.UserID) {
		return fmt.Errorf("%w: %s", ErrForbidden, channel)
	}
	return nil
}
