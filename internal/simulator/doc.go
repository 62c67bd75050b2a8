// Package simulator is an in-memory server for the session protocol. It
// issues and checks tokens, opens and registers services, resolves topics
// for publishers, fans published data out to subscribers and answers
// reference data requests. It backs the tests of the session layer and the
// simulate command.
package simulator
