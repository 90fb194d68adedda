package sqlstore

import (
	"context"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
)

type userRepository struct {
	repo[model.User, *model.User]
}

var _ repository.UserRepository = (*userRepository)(nil)

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.one(ctx, repository.Eq("username", username))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.one(ctx, repository.Eq("email", email))
}
