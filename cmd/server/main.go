package main

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	dotenv "github.com/joho/godotenv"
	envconf "github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/luckyComet55/junction-control/internal/broadcast"
	"github.com/luckyComet55/junction-control/internal/config"
	"github.com/luckyComet55/junction-control/internal/journal"
	"github.com/luckyComet55/junction-control/internal/junction"
	"github.com/luckyComet55/junction-control/internal/rpc"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := dotenv.Load(); err != nil {
		log.Println("Warning! No .env file found")
	}

	c, err := config.LoadServer(ctx, envconf.OsLookuper())
	if err != nil {
		log.Fatal(err)
	}

	logger, err := config.ConfigureLogger(c.Env, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}

	jc, err := c.Junction()
	if err != nil {
		logger.Error("invalid junction config", "err", err)
		os.Exit(1)
	}

	hub := broadcast.NewHub(logger.With("component", "hub"))
	requestLog := journal.New(c.JournalCapacity, nil)

	sequencer, err := junction.New(jc, junction.Notifiers{
		hub,
		junction.LogNotifier(logger.With("component", "signals")),
	}, logger.With("component", "sequencer"))
	if err != nil {
		logger.Error("could not build sequencer", "err", err)
		os.Exit(1)
	}

	srv := rpc.NewServer(sequencer, requestLog, hub, logger.With("component", "rpc"))
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(rpc.LoggingInterceptor(logger.With("component", "grpc"))))
	rpc.RegisterJunctionServer(grpcServer, srv)

	lis, err := net.Listen("tcp", c.ListenAddr)
	if err != nil {
		logger.Error("could not listen", "addr", c.ListenAddr, "err", err)
		os.Exit(1)
	}

	logger.Info("junction controller started",
		"addr", lis.Addr().String(),
		"mode", jc.Mode.String(),
		"state", sequencer.Snapshot().String(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		srv.Shutdown()
		grpcServer.GracefulStop()
		return sequencer.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
