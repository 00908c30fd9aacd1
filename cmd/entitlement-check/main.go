// Package main — клиент, который следит за доступом пользователя к Pro
// так же, как это делает интерфейс: спрашивает сервер, а при его
// недоступности показывает последний снимок без выдачи Pro.
//
// Использование:
//
//	CONFIG_PATH=config/local.yaml entitlement-check -user <uid> -token <jwt> [-watch]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/cache"
	"github.com/magabrotheeeer/entitlement-service/internal/clientcache"
	"github.com/magabrotheeeer/entitlement-service/internal/config"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/logger"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
)

func main() {
	userUID := flag.String("user", "", "user uid")
	token := flag.String("token", "", "bearer token")
	watch := flag.Bool("watch", false, "keep polling and print every change")
	flag.Parse()

	if *userUID == "" || *token == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.MustLoad()
	log := logger.New(cfg.Env, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		log.Error("failed to connect snapshot store", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	source := clientcache.NewHTTPSource(cfg.StatusClient.BaseURL, 10*time.Second)
	c := clientcache.New(source, store, cfg.StatusClient.FallbackTTL, log)
	id := clientcache.Identity{UserUID: *userUID, Token: *token}

	if !*watch {
		ent, err := c.Resolve(ctx, id)
		if err != nil {
			log.Warn("server unavailable and no snapshot", sl.Err(err))
		}
		printEntitlement(ent)
		return
	}

	w := clientcache.NewWatcher(c, cfg.StatusClient.PollInterval, log)
	go w.Run(ctx)
	w.SetIdentity(id)

	for u := range w.Updates() {
		printEntitlement(u.Entitlement)
	}
	log.Info("watch stopped", slog.String("user_uid", *userUID))
}

func printEntitlement(e any) {
	out, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(out))
}
