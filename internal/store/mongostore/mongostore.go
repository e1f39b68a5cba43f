package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	turnsCollection    = "chat_turns"
	usersCollection    = "users"
	countersCollection = "counters"
)

// Store keeps turns and users in MongoDB. Turn ordering comes from a
// per-collection counter, since ObjectIDs and timestamps are not strictly
// monotonic across clients.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var (
	_ chat.Store     = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)

func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the queries rely on. Safe to run on
// every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	log.Info("Running migration", "name", "mongo-schema", "database", s.db.Name())

	collections := map[string][]mongo.IndexModel{
		turnsCollection: {
			{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "owner_id", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "seq", Value: 1}}},
		},
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, indexes := range collections {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) turns() *mongo.Collection { return s.db.Collection(turnsCollection) }

func (s *Store) users() *mongo.Collection { return s.db.Collection(usersCollection) }

// nextSeq atomically increments and returns the counter named name.
func (s *Store) nextSeq(ctx context.Context, name string) (uint64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return uint64(doc.Seq), nil
}

func scopeFilter(filter bson.M, scope chat.Scope) bson.M {
	if scope.Scoped {
		filter["owner_id"] = scope.OwnerID
	}
	return filter
}

func (s *Store) findTurns(ctx context.Context, filter bson.M, limit int) ([]chat.Turn, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.turns().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	turns := []chat.Turn{}
	if err := cur.All(ctx, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// InsertTurn assigns the next sequence number and stores t under its
// TurnID. A second insert of the same TurnID returns chat.ErrDuplicateTurn.
func (s *Store) InsertTurn(ctx context.Context, t *chat.Turn) error {
	seq, err := s.nextSeq(ctx, turnsCollection)
	if err != nil {
		return fmt.Errorf("next turn seq: %w", err)
	}
	t.ID = seq
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if _, err := s.turns().InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.ErrDuplicateTurn
		}
		return err
	}
	return nil
}

func (s *Store) ListTurns(ctx context.Context, conversationID string, scope chat.Scope) ([]chat.Turn, error) {
	return s.findTurns(ctx, scopeFilter(bson.M{"conversation_id": conversationID}, scope), 0)
}

// ListConversations groups ownerID's turns by conversation, taking
// metadata from the earliest turn of each.
func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]chat.ConversationSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": ownerID}}},
		{{Key: "$sort", Value: bson.D{{Key: "seq", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversation_id"},
			{Key: "first_seq", Value: bson.M{"$first": "$seq"}},
			{Key: "conversation_name", Value: bson.M{"$first": "$conversation_name"}},
			{Key: "subject", Value: bson.M{"$first": "$subject"}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "first_seq", Value: 1}}}},
	}
	cur, err := s.turns().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []chat.ConversationSummary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].DisplayName = chat.DisplayName(out[i].ConversationID, out[i].ConversationName, out[i].Subject)
	}
	return out, nil
}

func (s *Store) SearchTurns(ctx context.Context, term string, scope chat.Scope, limit int) ([]chat.Turn, error) {
	re := bson.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"user_text": re},
		bson.M{"bot_text": re},
		bson.M{"subject": re},
	}}
	return s.findTurns(ctx, scopeFilter(filter, scope), limit)
}

func (s *Store) RenameConversation(ctx context.Context, conversationID string, ownerID string, name string) (int64, error) {
	res, err := s.turns().UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "owner_id": ownerID},
		bson.M{"$set": bson.M{"conversation_name": name}},
	)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string, ownerID string) (int64, error) {
	res, err := s.turns().DeleteMany(ctx, bson.M{"conversation_id": conversationID, "owner_id": ownerID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if _, err := s.users().InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return auth.ErrUserExists
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	var u auth.User
	if err := s.users().FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
