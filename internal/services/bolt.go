package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MegaGrindStone/chat-ui/internal/models"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the chat Store using a BoltDB backend. Every conversation owns a bucket of messages
// keyed by a big-endian sequence number, so a bucket iterates in append order. A top-level bucket
// indexes the known conversation ids.
type BoltDB struct {
	db *bolt.DB
}

var conversationsBucket = []byte("conversations")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create conversations bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func messageBucketName(conversationID string) []byte {
	return []byte(fmt.Sprintf("conversation-%s", conversationID))
}

func itob(v uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, v)
	return k
}

// Append stores msg in its conversation's bucket, creating the bucket on first use. It assigns an id
// and timestamps when they are missing and returns the stored message.
func (b BoltDB) Append(_ context.Context, msg models.Message) (models.Message, error) {
	if msg.ConversationID == "" {
		return models.Message{}, fmt.Errorf("message has no conversation id")
	}
	msg = stamp(msg)

	err := b.db.Update(func(tx *bolt.Tx) error {
		convs := tx.Bucket(conversationsBucket)
		if convs == nil {
			return fmt.Errorf("conversations bucket not found")
		}
		if convs.Get([]byte(msg.ConversationID)) == nil {
			started, err := msg.CreatedAt.MarshalText()
			if err != nil {
				return fmt.Errorf("failed to marshal conversation start: %w", err)
			}
			if err := convs.Put([]byte(msg.ConversationID), started); err != nil {
				return fmt.Errorf("failed to index conversation: %w", err)
			}
		}

		bucket, err := tx.CreateBucketIfNotExists(messageBucketName(msg.ConversationID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return bucket.Put(itob(seq), v)
	})
	if err != nil {
		return models.Message{}, err
	}

	return msg, nil
}

// Query retrieves all messages of the specified conversation, ordered by creation time.
func (b BoltDB) Query(_ context.Context, conversationID string, order models.SortOrder) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		messages, err = readBucket(tx, conversationID, models.MessageFilter{}, messages)
		return err
	})
	if err != nil {
		return nil, err
	}
	models.SortMessages(messages, order)
	return messages, nil
}

// List retrieves the messages of every conversation matching filter, ordered by creation time. A
// filter with a conversation id reads only that conversation's bucket.
func (b BoltDB) List(_ context.Context, filter models.MessageFilter, order models.SortOrder) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		if filter.ConversationID != "" {
			var err error
			messages, err = readBucket(tx, filter.ConversationID, filter, messages)
			return err
		}

		convs := tx.Bucket(conversationsBucket)
		if convs == nil {
			return nil
		}
		return convs.ForEach(func(k, _ []byte) error {
			var err error
			messages, err = readBucket(tx, string(k), filter, messages)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	models.SortMessages(messages, order)
	return messages, nil
}

func readBucket(tx *bolt.Tx, conversationID string, filter models.MessageFilter, dst []models.Message) ([]models.Message, error) {
	bucket := tx.Bucket(messageBucketName(conversationID))
	if bucket == nil {
		return dst, nil
	}

	err := bucket.ForEach(func(_, v []byte) error {
		var message models.Message
		if err := json.Unmarshal(v, &message); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}
		if filter.Match(message) {
			dst = append(dst, message)
		}
		return nil
	})
	return dst, err
}

// stamp assigns the id and timestamps a stored message must carry.
func stamp(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = msg.CreatedAt
	return msg
}
