package storage

import (
	"context"

	"github.com/bluehope/mace/internal/model"
)

// Store defines persistence operations for verification runs.
type Store interface {
	Init(ctx context.Context) error
	SaveVerification(ctx context.Context, record model.VerificationRecord) error
	GetVerification(ctx context.Context, id string) (model.VerificationRecord, bool, error)
	ListVerifications(ctx context.Context) ([]model.VerificationRecord, error)
}
