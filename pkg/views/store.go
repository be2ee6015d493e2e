package views

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/couchmongo/bridge/pkg/mongoadapter"
)

// AdapterStream adapts *mongoadapter.Adapter to the DocStream interface.
// It exists because Adapter.FindStream returns the concrete *mongo.Cursor
// type, while ViewEngine only wants the narrow Cursor interface.
type AdapterStream struct {
	Adapter *mongoadapter.Adapter
}

// FindStream implements DocStream.
func (s *AdapterStream) FindStream(ctx context.Context, collection string, filter bson.M) (Cursor, error) {
	cur, err := s.Adapter.FindStream(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	return cur, nil
}
