package db

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
)

type CleanupService struct {
	refreshTokens *RefreshTokenRepository
	resetTokens   *ResetTokenRepository
	interval      time.Duration
}

func NewCleanupService(refreshTokens *RefreshTokenRepository, resetTokens *ResetTokenRepository, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		refreshTokens: refreshTokens,
		resetTokens:   resetTokens,
		interval:      interval,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting token cleanup service", "component", "cleanup", "interval", s.interval)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping token cleanup service", "component", "cleanup")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *CleanupService) RunOnce(ctx context.Context) {
	refreshDeleted, err := s.refreshTokens.DeleteExpiredOrRevoked(ctx)
	if err != nil {
		slog.Error("error deleting stale refresh tokens", "component", "cleanup", "error", err)
	} else if refreshDeleted > 0 {
		slog.Info("deleted stale refresh tokens", "component", "cleanup", "count", refreshDeleted)
	}

	resetDeleted, err := s.resetTokens.DeleteExpiredOrUsed(ctx)
	if err != nil {
		slog.Error("error deleting stale reset tokens", "component", "cleanup", "error", err)
	} else if resetDeleted > 0 {
		slog.Info("deleted stale reset tokens", "component", "cleanup", "count", resetDeleted)
	}
}
