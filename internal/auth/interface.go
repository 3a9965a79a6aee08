package auth

import (
	"context"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
)

// Validator validates connection credentials against the authentication
// collaborator.
type Validator interface {
	Validate(ctx context.Context, token string) (*domain.Identity, error)
}
