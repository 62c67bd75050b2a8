// Package auth implements the authorization side of a session: parsing the
// authentication options, tracking the status of authorization requests, and
// running the token exchange handshake.
//
// The handshake has three steps:
//  1. generate a token on a dedicated event queue
//  2. send an authorization request carrying the token for an identity
//  3. wait for the answer: AuthorizationSuccess authorizes, anything else
//     answering the request fails, and the deadline times out
//
// Two waiting styles produce the same outcome. The pull style reads the
// session's events directly. The push style registers the correlation id in a
// Registry that the session's event handler feeds through Observe.
//
// Example usage:
//
//	reg := auth.NewRegistry()
//	authorizer, err := auth.NewAuthorizer(session,
//	    auth.WithRegistry(reg),
//	    auth.WithTimeout(5*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	outcome, err := authorizer.Authorize(ctx, identity, events.IntID(1))
//	if !outcome.Authorized() {
//	    return fmt.Errorf("not authorized: %w", err)
//	}
package auth
