// Package mongo implements history.Persistence on top of MongoDB,
// grounded on the teacher's features/session/mongo/clients/mongo/client.go:
// the Options-struct-with-defaults constructor, timeout-bounded operations
// via a per-call context.WithTimeout, and idempotent upsert via
// bson.M{"$set": ...} with options.Update().SetUpsert(true). This module
// targets go.mongodb.org/mongo-driver/v2, one major version newer than the
// teacher's v1 import path; the collection/bson API surface this file
// exercises (FindOne/UpdateOne/bson.M) is unchanged between the two major
// versions as far as this adapter uses it.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/goadesign/agentic-core/agentic/core"
)

const (
	defaultCollection = "agentic_history"
	defaultOpTimeout   = 5 * time.Second
)

// Options configures the Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// document is the durable wire shape of one session's history.
type document struct {
	SessionID string          `bson:"session_id"`
	Messages  []storedMessage `bson:"messages"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

type storedMessage struct {
	Role             string               `bson:"role"`
	Content          string               `bson:"content"`
	ReasoningContent string               `bson:"reasoning_content,omitempty"`
	ThinkingSig      string               `bson:"thinking_sig,omitempty"`
	ToolCalls        []storedToolCall     `bson:"tool_calls,omitempty"`
	ToolCallID       string               `bson:"tool_call_id,omitempty"`
	Name             string               `bson:"name,omitempty"`
}

type storedToolCall struct {
	ID        string         `bson:"id"`
	Name      string         `bson:"name"`
	Arguments map[string]any `bson:"arguments,omitempty"`
}

// Store implements history.Persistence on top of a MongoDB collection.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New constructs a Store, creating a unique index on session_id up front.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(idxCtx, idx); err != nil {
		return nil, err
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

// SaveMessages implements history.Persistence by upserting the full
// message slice for sessionID. The manager always calls this with the
// session's complete current history (append and replace both
// snapshot-then-save), so a full-document replace is correct and simpler
// than maintaining an incremental append log.
func (s *Store) SaveMessages(ctx context.Context, sessionID string, messages []core.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := document{SessionID: sessionID, Messages: encodeMessages(messages), UpdatedAt: time.Now().UTC()}
	filter := bson.M{"session_id": sessionID}
	update := bson.M{"$set": doc}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// LoadMessages implements history.Persistence.
func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]core.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc document
	err := s.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeMessages(doc.Messages), nil
}

func encodeMessages(messages []core.Message) []storedMessage {
	out := make([]storedMessage, 0, len(messages))
	for _, m := range messages {
		sm := storedMessage{
			Role:             string(m.Role),
			Content:          m.Content,
			ReasoningContent: m.ReasoningContent,
			ThinkingSig:      m.ThinkingSig,
			ToolCallID:       m.ToolCallID,
			Name:             m.Name,
		}
		for _, tc := range m.ToolCalls {
			sm.ToolCalls = append(sm.ToolCalls, storedToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		out = append(out, sm)
	}
	return out
}

func decodeMessages(stored []storedMessage) []core.Message {
	out := make([]core.Message, 0, len(stored))
	for _, sm := range stored {
		m := core.Message{
			Role:             core.ConversationRole(sm.Role),
			Content:          sm.Content,
			ReasoningContent: sm.ReasoningContent,
			ThinkingSig:      sm.ThinkingSig,
			ToolCallID:       sm.ToolCallID,
			Name:             sm.Name,
		}
		for _, tc := range sm.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, core.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		out = append(out, m)
	}
	return out
}
