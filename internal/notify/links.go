// Package notify implements domain.Notifier. Delivery itself happens outside
// this service; notifiers either log links (development) or enqueue them.
package notify

import (
	"net/url"
	"strings"
)

// LinkBuilder renders the frontend links embedded in outgoing emails.
type LinkBuilder struct {
	baseURL string
}

func NewLinkBuilder(frontendURL string) LinkBuilder {
	return LinkBuilder{baseURL: strings.TrimRight(frontendURL, "/")}
}

func (b LinkBuilder) VerificationLink(email, token string) string {
	return b.link("/verify-email", email, token)
}

func (b LinkBuilder) PasswordResetLink(email, token string) string {
	return b.link("/reset-password", email, token)
}

func (b LinkBuilder) link(path, email, token string) string {
	v := url.Values{}
	v.Set("token", token)
	v.Set("email", email)
	return b.baseURL + path + "?" + v.Encode()
}
