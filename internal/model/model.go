// Package model defines the synchronised entities and their document
// layouts in the remote store.
//
// All timestamps are Unix milliseconds as assigned by the store's server
// clock. Decoding never fails: missing or mistyped fields decode to zero
// values, so derived computations degrade instead of erroring.
package model

import (
	"github.com/roach88/tandem/internal/docstore"
)

// Collection names.
const (
	Sessions      = "sessions"
	Conversations = "conversations"
	Reminders     = "reminders"
	Accounts      = "accounts"
	Organizations = "organizations"
)

// MessagesOf returns the message subcollection of a conversation.
func MessagesOf(conversationID string) string {
	return docstore.Join(Conversations, conversationID, "messages")
}

// Account is a directory entry for a person who can sign in.
type Account struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	Email            string `json:"email"`
	Avatar           string `json:"avatar,omitempty"`
	OrganizationID   string `json:"organizationId,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
	AccountGroupID   string `json:"accountGroupId,omitempty"`
}

// AccountFromDoc decodes an accounts/{id} document.
func AccountFromDoc(doc docstore.Document) Account {
	return Account{
		ID:               doc.ID,
		DisplayName:      doc.Data.String("displayName"),
		Email:            doc.Data.String("email"),
		Avatar:           doc.Data.String("avatar"),
		OrganizationID:   doc.Data.String("organizationId"),
		OrganizationName: doc.Data.String("organizationName"),
		AccountGroupID:   doc.Data.String("accountGroupId"),
	}
}

// Fields encodes the account for an accounts/{id} document.
func (a Account) Fields() docstore.Fields {
	return docstore.Fields{
		"displayName":      a.DisplayName,
		"email":            a.Email,
		"avatar":           a.Avatar,
		"organizationId":   a.OrganizationID,
		"organizationName": a.OrganizationName,
		"accountGroupId":   a.AccountGroupID,
	}
}

// GroupID is the reminder group the account belongs to. Accounts without
// an explicit group form a group of one.
func (a Account) GroupID() string {
	if a.AccountGroupID != "" {
		return a.AccountGroupID
	}
	return a.ID
}

// Info returns the denormalised participant entry for the account.
func (a Account) Info() ParticipantInfo {
	return ParticipantInfo{
		DisplayName:      a.DisplayName,
		Email:            a.Email,
		Avatar:           a.Avatar,
		OrganizationName: a.OrganizationName,
	}
}
