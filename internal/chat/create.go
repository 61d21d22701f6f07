package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/tandem/internal/directory"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
)

// CreateConversation opens the conversation between self and peer and
// returns its id. Both accounts must exist in dir. Creating a pair that
// already has a conversation returns the existing id without writing.
func CreateConversation(ctx context.Context, store docstore.Store, dir directory.Directory, self, peer string) (string, error) {
	if self == "" || peer == "" {
		return "", fmt.Errorf("create conversation: empty participant: %w", docstore.ErrNotFound)
	}
	if self == peer {
		return "", ErrSameParticipant
	}

	info := make(map[string]any, 2)
	for _, id := range []string{self, peer} {
		acct, err := dir.Account(ctx, id)
		if err != nil {
			return "", fmt.Errorf("create conversation: %w", err)
		}
		info[id] = acct.Info().Fields()
	}

	id := ConversationID(self, peer)
	participants := []any{self, peer}
	if peer < self {
		participants = []any{peer, self}
	}
	_, err := store.Create(ctx, model.ConversationPath(id), docstore.Fields{
		"participants":     participants,
		"participantsInfo": info,
		"lastMessage": map[string]any{
			"text":      "",
			"senderId":  "",
			"timestamp": int64(0),
		},
		"unreadCount": int64(0),
		"createdAt":   docstore.ServerTimestamp,
		"updatedAt":   docstore.ServerTimestamp,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}
