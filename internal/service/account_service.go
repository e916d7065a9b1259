package service

import (
	"context"
	"errors"
	"log/slog"

	"postqueue/internal/models"
	"postqueue/internal/repository"
)

type AccountService interface {
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Remove(ctx context.Context, userID, accountID int64) error
}

type accountService struct {
	sa repository.SocialAccountRepository
}

func NewAccountService(sa repository.SocialAccountRepository) AccountService {
	return &accountService{
		sa: sa,
	}
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return s.sa.ListInfoByUserID(ctx, userID)
}

func (s *accountService) Remove(ctx context.Context, userID, accountID int64) error {
	if userID == 0 || accountID == 0 {
		err := errors.New("invalid account identifier")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	return s.sa.Remove(ctx, accountID)
}
