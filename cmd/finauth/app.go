package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	finAuth "github.com/MrEthical07/finAuth"
	"github.com/MrEthical07/finAuth/internal/logger"
	"github.com/redis/go-redis/v9"
)

// app holds what every subcommand needs.
type app struct {
	env    envConfig
	client *finAuth.Client
	logger *slog.Logger
	redis  redis.UniversalClient
}

func newApp(env envConfig, logOut io.Writer) (*app, error) {
	log, err := logger.Setup(logOut, logger.Options{Format: env.LogFormat, Level: env.LogLevel})
	if err != nil {
		return nil, err
	}

	cfg := finAuth.DefaultConfig()
	cfg.API.BaseURL = env.APIURL
	cfg.API.Timeout = env.Timeout
	cfg.API.UserAgent = "finauth-cli"
	cfg.Refresh.Proactive = env.Proactive
	cfg.TokenStore.Backend = finAuth.TokenStoreFile
	cfg.TokenStore.FilePath = env.TokenFile

	a := &app{env: env, logger: log}
	builder := finAuth.New().WithLogger(log)
	if env.RedisAddr != "" {
		cfg.TokenStore.Backend = finAuth.TokenStoreRedis
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{env.RedisAddr}})
		builder = builder.WithRedis(a.redis)
	}

	client, err := builder.WithConfig(cfg).Build()
	if err != nil {
		a.close()
		return nil, err
	}
	a.client = client
	return a, nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// describeError renders typed client errors for a terminal.
func describeError(err error) string {
	var (
		ve *finAuth.ValidationError
		ce *finAuth.CredentialError
	)
	switch {
	case errors.As(err, &ve):
		var b strings.Builder
		b.WriteString("registration rejected")
		if ve.Message != "" {
			b.WriteString(": " + ve.Message)
		}
		keys := make([]string, 0, len(ve.Fields))
		for k := range ve.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n  %s: %s", k, strings.Join(ve.Fields[k], " "))
		}
		return b.String()
	case errors.As(err, &ce):
		if ce.Detail != "" {
			return "login rejected: " + ce.Detail
		}
		return "login rejected"
	case errors.Is(err, finAuth.ErrSessionExpired):
		return "session expired, log in again"
	case errors.Is(err, finAuth.ErrNetwork):
		return "cannot reach the API: " + err.Error()
	case errors.Is(err, finAuth.ErrRefreshUnavailable):
		return "could not renew the session, try again: " + err.Error()
	default:
		return err.Error()
	}
}

func withContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
