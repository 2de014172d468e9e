package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qcom/banksession/internal/accounts"
	"github.com/qcom/banksession/internal/apiclient"
	"github.com/qcom/banksession/internal/config"
	"github.com/qcom/banksession/internal/guard"
	"github.com/qcom/banksession/internal/metrics"
	"github.com/qcom/banksession/internal/repository"
	"github.com/qcom/banksession/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	store    repository.CredentialStore
	client   *apiclient.Client
	ctrl     *session.Controller
	guard    *guard.Guard
	accounts *accounts.Store
	redis    *redis.Client
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":          {"login -email E -password P", runLogin},
	"register":       {"register -email E -password P -confirm P", runRegister},
	"logout":         {"logout", runLogout},
	"renew":          {"renew", runRenew},
	"profile":        {"profile", runProfile},
	"accounts":       {"accounts", runAccounts},
	"account":        {"account -number N", runAccount},
	"create-account": {"create-account -balance B", runCreateAccount},
	"delete-account": {"delete-account -number N", runDeleteAccount},
	"transact":       {"transact -account-id ID -amount A -type DEPOSIT|WITHDRAWAL", runTransact},
	"transactions":   {"transactions -account-id ID", runTransactions},
	"watch":          {"watch", runWatch},
	"demo":           {"demo -email E -password P", runDemo},
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "usage: bankctl <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if os.Getenv("BANKCTL_DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(); err != nil {
		logger.WithError(err).Fatal("Failed to load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize")
	}
	defer a.close()

	if err := cmd.run(ctx, a, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		a.close()
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	var backends repository.Backends

	switch cfg.Storage.Backend {
	case "redis":
		backends.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case "dynamodb":
		client, err := initDynamoDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		backends.DynamoDB = client
	}

	if err := repository.Ping(ctx, backends); err != nil {
		return nil, err
	}

	store, err := repository.NewCredentialStore(cfg, backends, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New("bankctl", prometheus.NewRegistry())

	client, err := apiclient.NewClient(cfg.API, store, logger, apiclient.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	opts := session.OptionsFromConfig(cfg.Session)
	opts.Metrics = m
	nav := session.NavigatorFunc(func(route string) {
		logger.WithField("route", route).Info("Navigate")
	})
	ctrl := session.New(client, store, nav, logger, opts)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		client:   client,
		ctrl:     ctrl,
		guard:    guard.ForController(ctrl, nav, opts),
		accounts: accounts.NewStore(client, ctrl, logger),
		redis:    backends.Redis,
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Debug("DynamoDB client initialized")
	return client, nil
}
