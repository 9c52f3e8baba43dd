package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/luckyComet55/junction-control/internal/broadcast"
	"github.com/luckyComet55/junction-control/internal/journal"
	"github.com/luckyComet55/junction-control/internal/junction"
)

const watchBuffer = 32

type Server struct {
	logger    *slog.Logger
	sequencer *junction.Sequencer
	journal   *journal.Journal
	hub       *broadcast.Hub

	done     chan struct{}
	doneOnce sync.Once
}

func NewServer(seq *junction.Sequencer, j *journal.Journal, hub *broadcast.Hub, logger *slog.Logger) *Server {
	return &Server{
		logger:    logger,
		sequencer: seq,
		journal:   j,
		hub:       hub,
		done:      make(chan struct{}),
	}
}

// Shutdown ends all Watch streams so a graceful stop does not hang on them.
func (s *Server) Shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, junction.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, junction.ErrModeUnsupported):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, junction.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Server) RequestRoad(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	id := int(in.GetValue())
	detail := fmt.Sprintf("Request to switch to Road %d", id)

	res, err := s.sequencer.RequestRoad(id)
	if err != nil {
		s.journal.Record(journal.KindRoad, detail, err.Error(), true)
		return nil, toStatus(err)
	}
	s.journal.Record(journal.KindRoad, detail, res.String(), res != junction.Accepted)

	msg := fmt.Sprintf("Traffic switch to Road %d initiated", id)
	if res == junction.AlreadyActive {
		msg = fmt.Sprintf("Road %d is already GREEN or switching", id)
	}
	return replyStruct(res, msg)
}

func (s *Server) RequestCrossing(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	id := int(in.GetValue())
	detail := fmt.Sprintf("Request for pedestrian crossing %d", id)

	res, err := s.sequencer.RequestCrossing(id)
	if err != nil {
		s.journal.Record(journal.KindCrossing, detail, err.Error(), true)
		return nil, toStatus(err)
	}
	s.journal.Record(journal.KindCrossing, detail, res.String(), res != junction.Accepted)

	msg := fmt.Sprintf("Pedestrian crossing %d sequence started", id)
	if res == junction.RoadActive {
		msg = fmt.Sprintf("Road %d is GREEN for vehicles. Pedestrians must wait.", id)
	}
	return replyStruct(res, msg)
}

func (s *Server) EmergencyStop(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res := s.sequencer.EmergencyStop()
	s.journal.Record(journal.KindEmergency, "Emergency mode activated", res.String(), false)
	return replyStruct(res, "Emergency mode activated! All signals are RED.")
}

func (s *Server) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return snapshotStruct(s.sequencer.Snapshot())
}

func (s *Server) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return statsStruct(s.journal.Stats(), s.journal.Now(), s.journal.Recent(recentLog))
}

func (s *Server) ClearLog(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	n := s.journal.Clear()
	s.logger.Info("request log cleared", "entries", n)
	return structpb.NewStruct(map[string]any{"cleared": n})
}

// Watch sends the current state, then every later snapshot until the client
// goes away or the server shuts down.
func (s *Server) Watch(_ *emptypb.Empty, stream WatchStream) error {
	updates, cancel := s.hub.Subscribe(watchBuffer)
	defer cancel()

	current := s.sequencer.Snapshot()
	if err := s.send(stream, current); err != nil {
		return err
	}
	last := current.Seq

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-s.done:
			return status.Error(codes.Unavailable, "server shutting down")
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if snap.Seq <= last {
				continue
			}
			if err := s.send(stream, snap); err != nil {
				return err
			}
			last = snap.Seq
		}
	}
}

func (s *Server) send(stream WatchStream, snap junction.Snapshot) error {
	msg, err := snapshotStruct(snap)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.Send(msg)
}

// LoggingInterceptor logs every unary call with its duration and status code.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
