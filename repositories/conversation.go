package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"estate-chat/domain"
	"estate-chat/errors"
)

// conversationRecord is the stored shape: the wire conversation plus
// the recency marker used to order directory listings.
type conversationRecord struct {
	domain.Conversation
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationRepository enforces the one-conversation-per-pair rule:
// the normalized pair index key is written in the same transaction as
// the conversation record, so two concurrent creates for the same
// unordered pair converge on a single conversation.
type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

func chatKey(id uuid.UUID) []byte {
	return []byte("chat:" + id.String())
}

func pairKey(a, b string) []byte {
	return []byte("pair:" + domain.PairKey(a, b))
}

// FindOrCreate returns the unique conversation between the unordered
// pair, creating it when absent. The creator starts in the seenBy set.
// The created flag tells callers whether a fresh record was written.
func (r ConversationRepository) FindOrCreate(creatorID, otherID string) (domain.Conversation, bool, error) {
	conversation, err := domain.NewConversation(uuid.New(), creatorID, otherID)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	conversation.MarkSeen(creatorID)

	created := false
	err = r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(creatorID, otherID))
		if err == nil {
			// Pair already bound: surface the existing conversation.
			return item.Value(func(val []byte) error {
				existingID, err := uuid.ParseBytes(val)
				if err != nil {
					return fmt.Errorf("corrupt pair index: %w", err)
				}
				existing, err := getRecord(txn, existingID)
				if err != nil {
					return err
				}
				conversation = existing.Conversation
				return nil
			})
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		record := conversationRecord{Conversation: conversation, UpdatedAt: time.Now().UTC()}
		if err := putRecord(txn, record); err != nil {
			return err
		}
		if err := txn.Set(pairKey(creatorID, otherID), []byte(conversation.ID.String())); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conversation, created, nil
}

// Get returns one conversation snapshot, without its message log.
func (r ConversationRepository) Get(id uuid.UUID) (domain.Conversation, error) {
	var record conversationRecord
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		record = found
		return nil
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return record.Conversation, nil
}

// ListFor returns the user's conversations, most recent activity
// first. This is the order the directory preserves verbatim.
func (r ConversationRepository) ListFor(userID string) ([]domain.Conversation, error) {
	var records []conversationRecord
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("chat:")
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record conversationRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return fmt.Errorf("corrupt conversation under %s: %w", it.Item().Key(), err)
				}
				if lo.Contains(record.Participants, userID) {
					records = append(records, record)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return lo.Map(records, func(record conversationRecord, _ int) domain.Conversation {
		return record.Conversation
	}), nil
}

// Touch applies a freshly stored message: preview text replaced,
// seenBy shrunk to the sender, recency marker advanced.
func (r ConversationRepository) Touch(id uuid.UUID, message domain.Message) error {
	return r.update(id, func(record *conversationRecord) {
		record.LastMessage = message.Text
		record.ResetSeen(message.SenderID)
		record.UpdatedAt = message.CreatedAt
	})
}

// MarkRead records the user in the conversation's seenBy set.
func (r ConversationRepository) MarkRead(id uuid.UUID, userID string) error {
	return r.update(id, func(record *conversationRecord) {
		record.MarkSeen(userID)
	})
}

func (r ConversationRepository) update(id uuid.UUID, fn func(*conversationRecord)) error {
	return r.db.Update(func(txn *badger.Txn) error {
		record, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		fn(&record)
		return putRecord(txn, record)
	})
}

func getRecord(txn *badger.Txn, id uuid.UUID) (conversationRecord, error) {
	var record conversationRecord
	item, err := txn.Get(chatKey(id))
	if err == badger.ErrKeyNotFound {
		return record, errors.ErrUnknownConversation
	}
	if err != nil {
		return record, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	return record, err
}

func putRecord(txn *badger.Txn, record conversationRecord) error {
	bytes, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return txn.Set(chatKey(record.ID), bytes)
}
