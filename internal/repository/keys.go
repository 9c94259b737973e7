package repository

import "strings"

// Key prefixes of every record this package owns. The store applies its own
// namespace on top.
const (
	accountPrefix       = "account:"
	usernameIndexPrefix = "idx:username:"
	emailIndexPrefix    = "idx:email:"
	sessionPrefix       = "session:"
	resourcePrefix      = "resource:"
	blobPrefix          = "blob:"

	// ExpiryPrefix is exported so maintenance tooling can inspect the index.
	ExpiryPrefix = "expiry:"
)

func accountKey(id string) string { return accountPrefix + id }

func usernameIndexKey(username string) string {
	return usernameIndexPrefix + strings.ToLower(strings.TrimSpace(username))
}

func emailIndexKey(email string) string {
	return emailIndexPrefix + strings.ToLower(strings.TrimSpace(email))
}

func sessionKey(token string) string { return sessionPrefix + token }

func resourceKey(name string) string { return resourcePrefix + name }

func blobKey(payloadKey string) string { return blobPrefix + payloadKey }
