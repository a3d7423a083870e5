// Package session carries the authenticated caller through a request.
package session

import "github.com/contentdesk/contentdesk/pkg/store"

// Session identifies the authenticated user for the duration of one request.
// It is built by the JWT middleware and passed explicitly; nothing global.
type Session struct {
	UserID string
	Email  string
	Tier   store.Tier
}
