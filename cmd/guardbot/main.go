package main

import (
	"context"
	"fmt"
	"os"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/meng-fucius/guardbot/internal/bot"
	"github.com/meng-fucius/guardbot/internal/config"
	"github.com/meng-fucius/guardbot/internal/db/sqlite"
	"github.com/meng-fucius/guardbot/internal/handlers"
	moderation "github.com/meng-fucius/guardbot/internal/handlers/moderation"
	"github.com/meng-fucius/guardbot/internal/infra"
	"github.com/meng-fucius/guardbot/internal/infrastructure/telegram"
	"github.com/meng-fucius/guardbot/internal/ledger"
	"github.com/meng-fucius/guardbot/internal/lifecycle"
	"github.com/meng-fucius/guardbot/internal/observability"
)

func main() {
	log.SetFormatter(&config.GbFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.WithError(err).Fatalln("cant load policy")
	}

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	store, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Errorln("cant close database")
		}
	}()

	blacklist := moderation.NewBlacklistService(store)
	tracker := moderation.NewViolationTracker(store)
	filter := moderation.NewKeywordFilter(policy.Keywords)
	controller := moderation.NewController(blacklist, tracker, filter, moderation.Policy{
		AutoKickOnSpeak: policy.AutoKickOnSpeak,
		MuteThreshold:   policy.MuteThreshold,
		MuteDuration:    policy.MuteDuration(),
		Probability:     policy.Probability,
	}, policy.Messages)
	ledgerClient := ledger.NewClient(cfg.Ledger)

	sessions := make([]moderation.Session, 0, len(cfg.BotTokens))
	telegramSessions := make([]*telegram.Session, 0, len(cfg.BotTokens))
	for _, token := range cfg.BotTokens {
		sess, err := telegram.NewSession(token, store)
		if err != nil {
			log.WithError(err).Errorln("cant initialize bot api")
			time.Sleep(1 * time.Second)
			log.Fatalln("exiting")
		}
		sessions = append(sessions, sess)
		telegramSessions = append(telegramSessions, sess)
	}

	scanner := moderation.NewScanner(blacklist, sessions, policy)
	runtime := lifecycle.NewRuntime(scanner)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start runtime")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Errorln("cant stop runtime")
		}
	}()

	for i, sess := range telegramSessions {
		botAPI := sess.Bot()
		if log.Level(cfg.LogLevel) == log.TraceLevel {
			botAPI.Debug = true
		}
		defer botAPI.StopReceivingUpdates()

		service := bot.NewService(botAPI, store)
		bot.RegisterUpdateHandler("enforcer", handlers.NewEnforcer(service, controller, sess, ledgerClient, policy.Messages))
		bot.RegisterUpdateHandler("admin", handlers.NewAdmin(service, blacklist, tracker, scanner, sess, policy.Messages))
		bot.RegisterUpdateHandler("points", handlers.NewPoints(service, ledgerClient, sess, policy.Messages))
		updateProcessor := bot.NewUpdateProcessor(service)

		updateConfig := api.NewUpdate(0)
		updateConfig.Timeout = 60
		updateConfig.AllowedUpdates = []string{"message", "edited_message", "chat_member", "my_chat_member", "chat_join_request"}

		go infra.GoRecoverable(-1, fmt.Sprintf("updates_%d", i), func() {
			updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)
			for {
				select {
				case err := <-errorChan:
					log.WithError(err).Fatalln("bot api get updates error")
				case update := <-updateChan:
					if err := updateProcessor.Process(ctx, &update); err != nil {
						log.WithError(err).Errorln("cant process update")
					}
				case <-ctx.Done():
					log.WithError(ctx.Err()).Errorln("no more updates")
					return
				}
			}
		})
	}

	<-infra.MonitorExecutable(ctx)
	log.Errorln("executable file was modified")
	os.Exit(0)
}
