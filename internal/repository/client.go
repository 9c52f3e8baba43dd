package repository

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/luckyComet55/junction-control/internal/junction"
	"github.com/luckyComet55/junction-control/internal/rpc"
)

// JunctionClient is the part of rpc.Client the repositories use.
type JunctionClient interface {
	RequestRoad(ctx context.Context, id int) (rpc.Reply, error)
	RequestCrossing(ctx context.Context, id int) (rpc.Reply, error)
	EmergencyStop(ctx context.Context) (rpc.Reply, error)
	GetState(ctx context.Context) (junction.Snapshot, error)
	GetStats(ctx context.Context) (rpc.StatsReply, error)
	ClearLog(ctx context.Context) (int, error)
	Watch(ctx context.Context, fn func(junction.Snapshot) error) error
}

var _ JunctionClient = (*rpc.Client)(nil)

// operatorError keeps errors the operator can act on and hides the rest.
func operatorError(err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return OperatorError{status.Convert(err).Message()}
	case codes.Unavailable:
		return OperatorError{"Junction controller is unavailable, try again later"}
	default:
		return OperatorError{"Some error occured, try again later"}
	}
}

// OperatorError is safe to show in the chat.
type OperatorError struct {
	Text string
}

func (e OperatorError) Error() string {
	return e.Text
}
