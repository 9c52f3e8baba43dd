package rpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/luckyComet55/junction-control/internal/junction"
)

// Client calls the junction service over an established connection.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) request(ctx context.Context, method string, id int) (Reply, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, wrapperspb.UInt32(uint32(id)), out); err != nil {
		return Reply{}, err
	}
	return replyFromStruct(out), nil
}

func (c *Client) RequestRoad(ctx context.Context, id int) (Reply, error) {
	return c.request(ctx, methodRequestRoad, id)
}

func (c *Client) RequestCrossing(ctx context.Context, id int) (Reply, error) {
	return c.request(ctx, methodRequestCrossing, id)
}

func (c *Client) EmergencyStop(ctx context.Context) (Reply, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodEmergencyStop, &emptypb.Empty{}, out); err != nil {
		return Reply{}, err
	}
	return replyFromStruct(out), nil
}

func (c *Client) GetState(ctx context.Context) (junction.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodGetState, &emptypb.Empty{}, out); err != nil {
		return junction.Snapshot{}, err
	}
	return SnapshotFromStruct(out)
}

func (c *Client) GetStats(ctx context.Context) (StatsReply, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodGetStats, &emptypb.Empty{}, out); err != nil {
		return StatsReply{}, err
	}
	return statsFromStruct(out), nil
}

func (c *Client) ClearLog(ctx context.Context) (int, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodClearLog, &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return int(out.GetFields()["cleared"].GetNumberValue()), nil
}

// Watch streams snapshots to fn until ctx ends, the server closes the stream
// or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(junction.Snapshot) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodWatch)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		snap, err := SnapshotFromStruct(out)
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}
