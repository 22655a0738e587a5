// Package oauth holds the federated sign-on collaborators: a provider
// registry, pure authorization-URL construction, and the code-exchange
// interface the engine calls to complete a federated login.
//
// # Architecture boundaries
//
// This package keeps no flow state. Redirect bookkeeping (state cookies,
// PKCE verifiers) belongs to the HTTP layer; identity resolution after an
// exchange belongs to the Engine.
package oauth
