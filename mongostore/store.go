// Package mongostore keeps the FTP content in MongoDB: file blobs with their
// metadata in the files collection, credentials in users and the audit trail
// in logs.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mongoftp/mongoftpd/mftp"
)

const (
	filesCollection = "files"
	usersCollection = "users"
	logsCollection  = "logs"

	opTimeout = 10 * time.Second
)

type Config struct {
	Mongostore storeConfig `toml:"mongostore"`
}

type storeConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

type Store struct {
	db *mongo.Database
}

type fileDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Filename string             `bson:"filename"`
	Owner    string             `bson:"owner"`
	Group    string             `bson:"group"`
	Size     int64              `bson:"size"`
	Mtime    time.Time          `bson:"mtime"`
	Content  []byte             `bson:"content"`
	Rnfr     bool               `bson:"rnfr,omitempty"`
}

type userDoc struct {
	Username string `bson:"username"`
	Password string `bson:"password"`
}

func loadStoreConfig(path string) (*storeConfig, error) {
	var c Config
	c.Mongostore.URI = "mongodb://127.0.0.1:27017"
	c.Mongostore.Database = "ftp"

	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, err
	}
	return &c.Mongostore, nil
}

// NewFromConfig reads the [mongostore] table of the given TOML file and
// connects to the configured database.
func NewFromConfig(path string) (*Store, error) {
	c, err := loadStoreConfig(path)
	if err != nil {
		return nil, err
	}
	return New(c.URI, c.Database)
}

func New(uri, database string) (*Store, error) {
	ctx, cancel := opContext()
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("could not reach mongodb at %s: %w", uri, err)
	}

	return &Store{db: client.Database(database)}, nil
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func (s *Store) files() *mongo.Collection {
	return s.db.Collection(filesCollection)
}

func recordFromDoc(doc *fileDoc) *mftp.FileRecord {
	return &mftp.FileRecord{
		ID:         doc.ID.Hex(),
		Filename:   doc.Filename,
		Owner:      doc.Owner,
		Group:      doc.Group,
		Size:       doc.Size,
		ModifiedAt: doc.Mtime,
		Content:    doc.Content,
	}
}

func (s *Store) findOne(filter bson.M) (*mftp.FileRecord, error) {
	ctx, cancel := opContext()
	defer cancel()

	var doc fileDoc
	err := s.files().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return recordFromDoc(&doc), nil
}

func (s *Store) FindByOwner(owner string) ([]mftp.FileRecord, error) {
	ctx, cancel := opContext()
	defer cancel()

	// listings never need the blob itself
	opts := options.Find().
		SetProjection(bson.M{"content": 0}).
		SetSort(bson.M{"filename": 1})

	cursor, err := s.files().Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := make([]mftp.FileRecord, 0)
	for cursor.Next(ctx) {
		var doc fileDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		records = append(records, *recordFromDoc(&doc))
	}
	return records, cursor.Err()
}

func (s *Store) FindByName(filename string) (*mftp.FileRecord, error) {
	return s.findOne(bson.M{"filename": filename})
}

func (s *Store) FindByNameAndOwner(filename, owner string) (*mftp.FileRecord, error) {
	return s.findOne(bson.M{"filename": filename, "owner": owner})
}

func (s *Store) FindPendingRename(owner string) (*mftp.FileRecord, error) {
	return s.findOne(bson.M{"rnfr": true, "owner": owner})
}

func (s *Store) Store(content []byte, meta mftp.FileMeta) (string, error) {
	ctx, cancel := opContext()
	defer cancel()

	res, err := s.files().InsertOne(ctx, &fileDoc{
		Filename: meta.Filename,
		Owner:    meta.Owner,
		Group:    meta.Group,
		Size:     int64(len(content)),
		Mtime:    meta.ModifiedAt,
		Content:  content,
	})
	if err != nil {
		return "", err
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return id.Hex(), nil
}

func (s *Store) Remove(filename, owner string) (int64, error) {
	ctx, cancel := opContext()
	defer cancel()

	res, err := s.files().DeleteMany(ctx, bson.M{"filename": filename, "owner": owner})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) RemoveID(id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	ctx, cancel := opContext()
	defer cancel()

	_, err = s.files().DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

func (s *Store) RenameTo(id, newName string, clearPending bool) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"filename": newName, "mtime": time.Now()}}
	if clearPending {
		update["$unset"] = bson.M{"rnfr": 1}
	}

	ctx, cancel := opContext()
	defer cancel()

	res, err := s.files().UpdateByID(ctx, oid, update)
	if err != nil {
		return err
	}
	if res.MatchedCount != 1 {
		return fmt.Errorf("rename matched %d records", res.MatchedCount)
	}
	return nil
}

func (s *Store) MarkPendingRename(id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	ctx, cancel := opContext()
	defer cancel()

	res, err := s.files().UpdateByID(ctx, oid, bson.M{"$set": bson.M{"rnfr": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount != 1 {
		return fmt.Errorf("mark matched %d records", res.MatchedCount)
	}
	return nil
}

func (s *Store) ClearPendingRename(id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	ctx, cancel := opContext()
	defer cancel()

	res, err := s.files().UpdateByID(ctx, oid, bson.M{"$unset": bson.M{"rnfr": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount != 1 {
		return fmt.Errorf("clear matched %d records", res.MatchedCount)
	}
	return nil
}

func (s *Store) LookupUser(username string) (*mftp.User, error) {
	ctx, cancel := opContext()
	defer cancel()

	var doc userDoc
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mftp.User{Username: doc.Username, PasswordHash: doc.Password}, nil
}

// AddUser creates or replaces a user's credentials. The engine never calls
// this; it exists for the admin tooling.
func (s *Store) AddUser(username, passwordHash string) error {
	ctx, cancel := opContext()
	defer cancel()

	_, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"password": passwordHash}},
		options.Update().SetUpsert(true))
	return err
}
