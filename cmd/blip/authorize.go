package main

import (
	"context"
	"fmt"

	"github.com/casualjim/blip"
	"github.com/casualjim/blip/auth"
	"github.com/casualjim/blip/config"
	"github.com/casualjim/blip/events"
)

// authCID correlates the authorization handshake of the commands.
var authCID = events.IntID(0xa07)

// authorize runs the token exchange in the pull shape when the options ask for
// it. It returns a nil identity when no authorization is configured. Events
// that arrive during the handshake are handed to seen.
func authorize(ctx context.Context, f *config.File, sess *blip.Session, seen events.Hook) (*blip.Identity, error) {
	ao, err := f.AuthOptions()
	if err != nil {
		return nil, err
	}
	if !ao.Required() {
		return nil, nil
	}

	options := []auth.Option{
		auth.WithOptions(ao),
		auth.WithPassThrough(func(ctx context.Context, ev events.Event) { events.Route(ctx, seen, ev) }),
	}
	if f.Auth.Timeout > 0 {
		options = append(options, auth.WithTimeout(f.Auth.Timeout.Duration()))
	}
	authorizer, err := auth.NewAuthorizer(sess, options...)
	if err != nil {
		return nil, err
	}

	identity := sess.CreateIdentity()
	outcome, err := authorizer.Authorize(ctx, identity, authCID)
	if !outcome.Authorized() {
		return nil, fmt.Errorf("authorization %s: %w", outcome, err)
	}
	return identity, nil
}
