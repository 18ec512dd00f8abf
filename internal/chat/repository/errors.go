package repository

import (
	"errors"

	"campus_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/mongo"
)

// storeError translate driver errors into the chat taxonomy
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.NewNotFoundError("%s not found", op)
	case mongo.IsDuplicateKeyError(err):
		return domain.NewConflictError(op, err)
	default:
		return domain.NewTransientError(op, err)
	}
}
