package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"postqueue/internal/models"
	"postqueue/internal/repository"
)

// TokenRefresher renews one account's platform credentials.
type TokenRefresher interface {
	RefreshAccount(ctx context.Context, account *models.SocialAccount) error
}

// TokenRefreshJob renews credentials that expire soon, so scheduled publishes
// do not fail on a token that lapsed between enqueue and execution.
type TokenRefreshJob struct {
	sr        repository.SocialAccountRepository
	refresher TokenRefresher
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, refresher TokenRefresher) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:        sr,
		refresher: refresher,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListByTimeInterval(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refresher.RefreshAccount(ctx, acc); err != nil {
				slog.Info(fmt.Sprintf("unable to refresh %s token for user %d: %v", acc.Platform, acc.UserID, err))
			}
		}(acc)
	}

	wg.Wait()
}
