package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/segyhp/tontine-engine/internal/domain"
	customError "github.com/segyhp/tontine-engine/pkg/errors"
)

const (
	tontinesCollection      = "tontines"
	notificationsCollection = "notifications"
)

var (
	_ TontineRepository      = (*MongoTontineStore)(nil)
	_ NotificationRepository = (*MongoNotificationStore)(nil)
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Registry returns a bson registry that stores decimal.Decimal as its exact
// string form.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(decimalType, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(decimalType, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != decimalType {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}
	return vw.WriteString(val.Interface().(decimal.Decimal).String())
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != decimalType {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{decimalType}, Received: val}
	}
	s, err := vr.ReadString()
	if err != nil {
		return err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("decode decimal %q: %w", s, err)
	}
	val.Set(reflect.ValueOf(d))
	return nil
}

// OpenMongo returns the database handle with the decimal codec applied.
func OpenMongo(client *mongo.Client, name string) *mongo.Database {
	return client.Database(name, options.Database().SetRegistry(Registry()))
}

// EnsureMongoIndexes creates the indexes the stores rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(tontinesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "invite_code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "initiator_id", Value: 1}}},
		{Keys: bson.D{{Key: "participants.user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create tontine indexes: %w", err)
	}

	_, err = db.Collection(notificationsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}
	return nil
}

// MongoTontineStore persists each tontine as one document.
type MongoTontineStore struct {
	c *mongo.Collection
}

func NewMongoTontineStore(db *mongo.Database) *MongoTontineStore {
	return &MongoTontineStore{c: db.Collection(tontinesCollection)}
}

func (s *MongoTontineStore) Load(ctx context.Context, id string) (*domain.Tontine, error) {
	var t domain.Tontine
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, customError.WrapTontineNotFound(id)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return &t, nil
}

func (s *MongoTontineStore) Save(ctx context.Context, tontine *domain.Tontine) error {
	expected := tontine.Version
	next := *tontine
	next.Version = expected + 1
	next.InviteCode = strings.ToUpper(next.InviteCode)

	if expected == 0 {
		_, err := s.c.InsertOne(ctx, &next)
		if mongo.IsDuplicateKeyError(err) {
			return customError.WrapConcurrencyConflict(next.ID)
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		tontine.Version = next.Version
		return nil
	}

	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": next.ID, "version": expected}, &next)
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if res.MatchedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": next.ID})
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		if n == 0 {
			return customError.WrapTontineNotFound(next.ID)
		}
		return customError.WrapConcurrencyConflict(next.ID)
	}

	tontine.Version = next.Version
	return nil
}

func (s *MongoTontineStore) Delete(ctx context.Context, id string, version int64) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "version": version})
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if res.DeletedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return customError.WrapDatabaseError(err)
		}
		if n == 0 {
			return customError.WrapTontineNotFound(id)
		}
		return customError.WrapConcurrencyConflict(id)
	}
	return nil
}

func (s *MongoTontineStore) Query(ctx context.Context, filter domain.TontineFilter) ([]*domain.Tontine, error) {
	q := bson.M{}
	if filter.InitiatorID != "" {
		q["initiator_id"] = filter.InitiatorID
	}
	if filter.InviteCode != "" {
		q["invite_code"] = strings.ToUpper(filter.InviteCode)
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.ParticipantUserID != "" {
		q["participants.user_id"] = filter.ParticipantUserID
	}

	cur, err := s.c.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	defer cur.Close(ctx)

	var out []*domain.Tontine
	if err := cur.All(ctx, &out); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return out, nil
}

// MongoNotificationStore keeps notifications in their own collection.
type MongoNotificationStore struct {
	c *mongo.Collection
}

func NewMongoNotificationStore(db *mongo.Database) *MongoNotificationStore {
	return &MongoNotificationStore{c: db.Collection(notificationsCollection)}
}

func (s *MongoNotificationStore) Create(ctx context.Context, notification *domain.Notification) error {
	if _, err := s.c.InsertOne(ctx, notification); err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}

func (s *MongoNotificationStore) ListByUser(ctx context.Context, userID string) ([]*domain.Notification, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	defer cur.Close(ctx)

	var out []*domain.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return out, nil
}

func (s *MongoNotificationStore) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	if res.MatchedCount == 0 {
		return customError.WrapNotificationNotFound(id)
	}
	return nil
}

func (s *MongoNotificationStore) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.c.UpdateMany(ctx, bson.M{"user_id": userID, "read": false}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return customError.WrapDatabaseError(err)
	}
	return nil
}
