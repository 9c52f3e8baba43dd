package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/go-telegram/bot"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	dotenv "github.com/joho/godotenv"
	envconf "github.com/sethvargo/go-envconfig"

	"github.com/luckyComet55/junction-control/internal/config"
	"github.com/luckyComet55/junction-control/internal/handler"
	"github.com/luckyComet55/junction-control/internal/middleware"
	repo "github.com/luckyComet55/junction-control/internal/repository"
	"github.com/luckyComet55/junction-control/internal/rpc"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := dotenv.Load(); err != nil {
		log.Println("Warning! No .env file found")
	}

	c, err := config.LoadBot(ctx, envconf.OsLookuper())
	if err != nil {
		panic(err)
	}

	logger, err := config.ConfigureLogger(c.Env, os.Stdout)
	if err != nil {
		panic(err)
	}

	conn, err := grpc.NewClient(c.ServerURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	client := rpc.NewClient(conn)

	signalRepo := repo.NewSignalRepository(client, logger.With("component", "signalRepo"))
	statsRepo := repo.NewStatsRepository(client, logger.With("component", "statsRepo"))
	operatorRepo := repo.NewOperatorRepository(repo.NewOperatorMachine())

	handlerWrapper := handler.NewMessageHandler(signalRepo, statsRepo, operatorRepo, logger.With("component", "handlerWrapper"))
	whitelistMiddleware := middleware.NewWhitelistMiddleware(c.AuthorizedUsers, logger.With("component", "whitelistMiddleware"))
	everythingHandler := middleware.WithWhitelist(whitelistMiddleware, handlerWrapper.HandleUpdate)
	startHandler := middleware.WithWhitelist(whitelistMiddleware, handlerWrapper.HandleStart)
	cancelHandler := middleware.WithWhitelist(whitelistMiddleware, handlerWrapper.HandleCancel)

	opts := []bot.Option{
		bot.WithDefaultHandler(everythingHandler),
		bot.WithMessageTextHandler("/start", bot.MatchTypeExact, startHandler),
		bot.WithMessageTextHandler("/cancel", bot.MatchTypeExact, cancelHandler),
	}
	if c.Env == "dev" {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(c.BotApiKey, opts...)
	if err != nil {
		panic(err)
	}

	logger.Info("operator bot started", "server", c.ServerURL, "operators", len(c.AuthorizedUsers))
	b.Start(ctx)
	handlerWrapper.Wait()
}
