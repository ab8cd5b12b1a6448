package main

import (
	"bfbot/internal/config"
	"bfbot/internal/engine"
	"bfbot/internal/exchange"
	"bfbot/internal/exchange/bitflyer"
	"bfbot/internal/exchange/bitflyer/stream"
	"bfbot/internal/exchange/cryptowatch"
	"bfbot/internal/exchange/paper"
	"bfbot/internal/logger"
	"bfbot/internal/server"
	"bfbot/internal/store"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	path, _ := flags.GetString("config")

	cfg, err := config.Load(path, flags)
	if err != nil {
		panic(err)
	}

	logger := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	logger.Info("Бот запущен.")
	if cfg.Runtime.Mode != config.ModeBacktest {
		logger.Warn("Состояние ордеров не сохраняется: после перезапуска открытые позиции нужно проверить вручную.")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	feed := cryptowatch.New(cfg.Feed.BaseUrl, logger)

	var client exchange.Client
	if cfg.Runtime.DryRun {
		logger.Info("Бумажная торговля: ордера исполняются локально.")
		client = paper.New(feed, logger)
	} else {
		venue := bitflyer.New(cfg.Exchange.BaseUrl, cfg.Exchange.ApiKey, cfg.Exchange.Secret, logger)
		if cfg.Exchange.UseStream {
			quotes := stream.New(cfg.Exchange.WSUrl, logger)
			if err := quotes.Connect(ctx); err != nil {
				logger.WithError(err).Warn("Поток котировок недоступен, используем REST.")
			} else if err := quotes.Subscribe(cfg.Exchange.Pair); err != nil {
				logger.WithError(err).Warn("Не удалось подписаться на котировки, используем REST.")
				quotes.Close()
			} else {
				defer quotes.Close()
				venue = venue.WithQuotes(quotes, 5*time.Second)
			}
		}
		client = venue
	}

	var archive engine.CandleArchive
	if cfg.Backtest.ArchivePath != "" {
		st, err := store.Open(cfg.Backtest.ArchivePath)
		if err != nil {
			logger.WithError(err).Fatal("Не удалось открыть архив свечей.")
		}
		defer st.Close()
		archive = st
	}

	eng := engine.New(cfg, client, feed, archive, logger)

	if cfg.Runtime.MetricsAddr != "" {
		srv := server.New(cfg.Runtime.MetricsAddr, eng.Status, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.WithError(err).Error("HTTP-сервер завершился с ошибкой.")
			}
		}()
	}

	if err := eng.Start(ctx); err != nil {
		logger.WithError(err).Error("\"Двигатель\" завершился с ошибкой.")
		cancel()
		logger.Fatal("Бот остановлен аварийно.")
	}

	logger.Info("Бот остановлен.")
}
