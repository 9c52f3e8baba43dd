package repository

import (
	"context"
	"log/slog"

	"github.com/luckyComet55/junction-control/internal/junction"
	"github.com/luckyComet55/junction-control/internal/rpc"
)

type SignalRepository interface {
	SwitchRoad(ctx context.Context, roadID int) (rpc.Reply, error)
	RequestCrossing(ctx context.Context, crossingID int) (rpc.Reply, error)
	EmergencyStop(ctx context.Context) (rpc.Reply, error)
	State(ctx context.Context) (junction.Snapshot, error)
	Watch(ctx context.Context, fn func(junction.Snapshot) error) error
}

type signalRepository struct {
	logger *slog.Logger
	client JunctionClient
}

func NewSignalRepository(client JunctionClient, logger *slog.Logger) SignalRepository {
	return &signalRepository{
		logger: logger,
		client: client,
	}
}

func (repo *signalRepository) SwitchRoad(ctx context.Context, roadID int) (rpc.Reply, error) {
	reply, err := repo.client.RequestRoad(ctx, roadID)
	if err != nil {
		repo.logger.Error(err.Error(), "method", "RequestRoad", "road", roadID)
		return rpc.Reply{}, operatorError(err)
	}
	return reply, nil
}

func (repo *signalRepository) RequestCrossing(ctx context.Context, crossingID int) (rpc.Reply, error) {
	reply, err := repo.client.RequestCrossing(ctx, crossingID)
	if err != nil {
		repo.logger.Error(err.Error(), "method", "RequestCrossing", "crossing", crossingID)
		return rpc.Reply{}, operatorError(err)
	}
	return reply, nil
}

func (repo *signalRepository) EmergencyStop(ctx context.Context) (rpc.Reply, error) {
	reply, err := repo.client.EmergencyStop(ctx)
	if err != nil {
		repo.logger.Error(err.Error(), "method", "EmergencyStop")
		return rpc.Reply{}, operatorError(err)
	}
	return reply, nil
}

func (repo *signalRepository) State(ctx context.Context) (junction.Snapshot, error) {
	snap, err := repo.client.GetState(ctx)
	if err != nil {
		repo.logger.Error(err.Error(), "method", "GetState")
		return junction.Snapshot{}, operatorError(err)
	}
	return snap, nil
}

// Watch blocks until ctx is done or the stream breaks. Cancelling ctx is not
// an error.
func (repo *signalRepository) Watch(ctx context.Context, fn func(junction.Snapshot) error) error {
	err := repo.client.Watch(ctx, fn)
	if err == nil || ctx.Err() != nil {
		return nil
	}
	repo.logger.Error(err.Error(), "method", "Watch")
	return operatorError(err)
}
