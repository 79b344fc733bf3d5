////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package history is the client of the historical message store, the
// paginated HTTP service every persisted message can be fetched from.
package history

import (
	"context"

	"gitlab.com/elixxir/chatsync/message"
)

// Store is the historical message store. Pages are returned oldest first;
// offset counts messages back from the newest one.
type Store interface {
	// FetchMessages returns up to limit messages of the conversation,
	// skipping the offset newest ones.
	FetchMessages(ctx context.Context, key message.ConversationKey,
		limit, offset int) ([]*message.Message, error)

	// FetchMessagesAround returns a window of messages around target.
	FetchMessagesAround(ctx context.Context, key message.ConversationKey,
		target message.ID) ([]*message.Message, error)

	// CreateMessage persists a draft and returns the persisted message.
	CreateMessage(ctx context.Context, d message.Draft) (*message.Message, error)

	// EditMessage replaces the text, and the media if media is not nil, of
	// the message.
	EditMessage(ctx context.Context, id message.ID, editor, text string,
		media *message.Media) error

	// DeleteMessage soft-deletes the message. Only the sender or a privileged
	// requester may delete it.
	DeleteMessage(ctx context.Context, id message.ID, requester string,
		isPrivileged bool, deleterDisplayName string) error

	// MarkConversationRead marks every message of the conversation as read by
	// the current identity.
	MarkConversationRead(ctx context.Context, key message.ConversationKey) error

	// GetUnreadCounts returns the number of unread messages per conversation
	// of the current identity.
	GetUnreadCounts(ctx context.Context) (map[message.ConversationKey]int, error)
}
