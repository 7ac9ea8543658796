package mongostore

import (
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

// AuditLog appends timestamped messages to the logs collection. Delivery is
// fire-and-forget; failures are logged and swallowed.
type AuditLog struct {
	store *Store
}

func NewAuditLog(store *Store) *AuditLog {
	return &AuditLog{store: store}
}

func (l *AuditLog) Write(message string) {
	ctx, cancel := opContext()
	defer cancel()

	_, err := l.store.db.Collection(logsCollection).InsertOne(ctx, bson.M{
		"message":   message,
		"timestamp": time.Now(),
	})
	if err != nil {
		logrus.Errorf("audit log write failed: %s", err)
	}
}
