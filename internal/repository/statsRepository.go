package repository

import (
	"context"
	"log/slog"

	"github.com/luckyComet55/junction-control/internal/rpc"
)

type StatsRepository interface {
	Stats(ctx context.Context) (rpc.StatsReply, error)
	ClearLog(ctx context.Context) (int, error)
}

type statsRepository struct {
	logger *slog.Logger
	client JunctionClient
}

func NewStatsRepository(client JunctionClient, logger *slog.Logger) StatsRepository {
	return &statsRepository{
		logger: logger,
		client: client,
	}
}

func (sr *statsRepository) Stats(ctx context.Context) (rpc.StatsReply, error) {
	stats, err := sr.client.GetStats(ctx)
	if err != nil {
		sr.logger.Error(err.Error(), "method", "GetStats")
		return rpc.StatsReply{}, operatorError(err)
	}
	return stats, nil
}

func (sr *statsRepository) ClearLog(ctx context.Context) (int, error) {
	n, err := sr.client.ClearLog(ctx)
	if err != nil {
		sr.logger.Error(err.Error(), "method", "ClearLog")
		return 0, operatorError(err)
	}
	return n, nil
}
