package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/mercuria"
	"github.com/layer-3/mercuria/adapters/events"
	"github.com/layer-3/mercuria/config"
	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/internal/logger"
	"github.com/layer-3/mercuria/ports"
	"github.com/layer-3/mercuria/service"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

type appKey struct{}

// app carries what every command needs
type app struct {
	client *mercuria.Client
	log    *slog.Logger
	close  func()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		var fields core.FieldErrors
		if errors.As(err, &fields) {
			for field, msg := range fields {
				fmt.Fprintf(os.Stderr, "%s: %s\n", field, msg)
			}
		} else {
			fmt.Fprintln(os.Stderr, core.UserMessage(err, err.Error()))
		}
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:   "mercuria",
		Usage:  "Mercuria wallet client",
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "sign in with email and password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"MERCURIA_PASSWORD"}, Required: true},
				},
				Action: login,
			},
			{
				Name:  "register",
				Usage: "create an account and sign in",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"MERCURIA_PASSWORD"}, Required: true},
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
				},
				Action: register,
			},
			{Name: "logout", Usage: "end the session", Action: logout},
			{Name: "whoami", Usage: "show the signed in user", Action: whoami},
			{
				Name:   "wallets",
				Usage:  "list wallets",
				Action: listWallets,
				Subcommands: []*cli.Command{
					{
						Name:   "create",
						Usage:  "open a wallet",
						Flags:  []cli.Flag{&cli.StringFlag{Name: "currency", Required: true}},
						Action: createWallet,
					},
					{
						Name:      "show",
						Usage:     "show a wallet and its activity",
						ArgsUsage: "<wallet-id>",
						Action:    showWallet,
					},
				},
			},
			{
				Name:   "deposit",
				Usage:  "deposit into a wallet",
				Flags:  movementFlags(),
				Action: deposit,
			},
			{
				Name:   "withdraw",
				Usage:  "withdraw from a wallet",
				Flags:  movementFlags(),
				Action: withdraw,
			},
			{
				Name:  "transfer",
				Usage: "send funds to another wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Required: true},
					&cli.StringFlag{Name: "to", Required: true},
					&cli.StringFlag{Name: "amount", Required: true},
					&cli.StringFlag{Name: "description"},
				},
				Action: transfer,
			},
			{
				Name:   "transactions",
				Usage:  "list the transactions of a wallet",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "wallet", Required: true}},
				Action: listTransactions,
			},
			{
				Name:      "transaction",
				Usage:     "show a transaction",
				ArgsUsage: "<transaction-id>",
				Action:    showTransaction,
			},
			{
				Name:  "analytics",
				Usage: "read aggregated metrics",
				Subcommands: []*cli.Command{
					{
						Name:   "daily",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "days", Value: 7}},
						Action: dailyMetrics,
					},
					{
						Name:   "hourly",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "hours", Value: 24}},
						Action: hourlyMetrics,
					},
					{
						Name:   "summary",
						Flags:  []cli.Flag{&cli.StringFlag{Name: "period", Value: "day"}},
						Action: summary,
					},
					{
						Name:      "user",
						ArgsUsage: "[user-id]",
						Flags:     []cli.Flag{&cli.IntFlag{Name: "days", Value: 30}},
						Action:    userMetrics,
					},
				},
			},
		},
	}
}

func movementFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "wallet", Required: true},
		&cli.StringFlag{Name: "amount", Required: true},
		&cli.StringFlag{Name: "description"},
	}
}

// setup builds the client and resumes the persisted session
func setup(c *cli.Context) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	log := logger.New("mercuria", cfg.LogLevel)
	if cfg.CredentialStore == config.StoreMemory {
		log.Warn("credential store is in memory, the session ends with this process")
	}

	pub, closePub, err := eventPublisher(c.Context, cfg, log)
	if err != nil {
		return err
	}

	client, err := mercuria.New(cfg, mercuria.WithLogger(log), mercuria.WithEventPublisher(pub))
	if err != nil {
		closePub()
		return err
	}

	if _, err := client.Bootstrap(c.Context); err != nil {
		log.Warn("could not resume session", slog.String("error", err.Error()))
	}

	c.App.Metadata = map[string]interface{}{
		"app": &app{
			client: client,
			log:    log,
			close: func() {
				if err := client.Close(); err != nil {
					log.Warn("failed to close client", slog.String("error", err.Error()))
				}
				closePub()
			},
		},
	}
	return nil
}

func teardown(c *cli.Context) error {
	if a := appFrom(c); a != nil {
		a.close()
	}
	return nil
}

func appFrom(c *cli.Context) *app {
	a, _ := c.App.Metadata["app"].(*app)
	return a
}

// eventPublisher streams session events to redis when enabled, otherwise it
// logs them from an in-process channel
func eventPublisher(ctx context.Context, cfg *config.ClientConfig, log *slog.Logger) (ports.EventPublisher, func(), error) {
	wmLogger := watermill.NewStdLogger(false, false)

	if cfg.EventStream {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("create redis publisher: %w", err)
		}
		return events.NewWatermillPublisher(publisher), func() {
			publisher.Close()
			redisClient.Close()
		}, nil
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	messages, err := pubSub.Subscribe(ctx, events.SessionTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe session events: %w", err)
	}
	go logEvents(messages, log)

	return events.NewWatermillPublisher(pubSub), func() { pubSub.Close() }, nil
}

func logEvents(messages <-chan *message.Message, log *slog.Logger) {
	for msg := range messages {
		log.Debug("session event", slog.String("type", msg.Metadata.Get("type")), slog.String("payload", string(msg.Payload)))
		msg.Ack()
	}
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func login(c *cli.Context) error {
	session, err := appFrom(c).client.Login(c.Context, core.LoginInput{
		Email:    c.String("email"),
		Password: c.String("password"),
	})
	if err != nil {
		return err
	}
	return printJSON(c, session)
}

func register(c *cli.Context) error {
	session, err := appFrom(c).client.Register(c.Context, core.RegisterInput{
		Email:           c.String("email"),
		Password:        c.String("password"),
		ConfirmPassword: c.String("password"),
		FirstName:       c.String("first-name"),
		LastName:        c.String("last-name"),
	})
	if err != nil {
		return err
	}
	return printJSON(c, session)
}

func logout(c *cli.Context) error {
	return appFrom(c).client.Logout(c.Context)
}

func whoami(c *cli.Context) error {
	user, err := appFrom(c).client.Wallets().Me(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, user)
}

func listWallets(c *cli.Context) error {
	wallets, err := appFrom(c).client.Wallets().ListWallets(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, wallets)
}

func createWallet(c *cli.Context) error {
	wallet, err := appFrom(c).client.Wallets().CreateWallet(c.Context, c.String("currency"))
	if err != nil {
		return err
	}
	return printJSON(c, wallet)
}

func showWallet(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.Exit("wallet id is required", 2)
	}
	wallets := appFrom(c).client.Wallets()

	wallet, err := wallets.GetWallet(c.Context, id)
	if err != nil {
		return err
	}
	activity, err := wallets.WalletEvents(c.Context, id)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]any{"wallet": wallet, "events": activity})
}

func deposit(c *cli.Context) error {
	form := appFrom(c).client.NewDepositForm(c.String("wallet"))
	return submit(c, form, core.MovementInput{Amount: c.String("amount"), Description: c.String("description")})
}

func withdraw(c *cli.Context) error {
	a := appFrom(c)
	wallet, err := a.client.Wallets().GetWallet(c.Context, c.String("wallet"))
	if err != nil {
		return err
	}
	form := a.client.NewWithdrawForm(*wallet)
	return submit(c, form.Form, core.MovementInput{Amount: c.String("amount"), Description: c.String("description")})
}

func transfer(c *cli.Context) error {
	a := appFrom(c)
	wallets, err := a.client.Wallets().ListWallets(c.Context)
	if err != nil {
		return err
	}
	form := a.client.NewTransferForm(wallets)
	return submit(c, form.Form, core.TransferInput{
		FromWalletID: c.String("from"),
		ToWalletID:   c.String("to"),
		Amount:       c.String("amount"),
		Description:  c.String("description"),
	})
}

// submit sends the form once and resends it under the same key when the
// outcome is unknown
func submit[In any](c *cli.Context, form *service.Form[In, core.Transaction], in In) error {
	tx, err := form.Submit(c.Context, in)
	if err != nil && form.CanRetry() {
		appFrom(c).log.Warn("outcome unknown, retrying", slog.String("idempotency_key", form.LastKey()))
		select {
		case <-time.After(time.Second):
		case <-c.Context.Done():
			return c.Context.Err()
		}
		tx, err = form.Retry(c.Context)
	}
	if err != nil {
		return err
	}
	return printJSON(c, tx)
}

func listTransactions(c *cli.Context) error {
	txs, err := appFrom(c).client.Wallets().ListTransactions(c.Context, c.String("wallet"))
	if err != nil {
		return err
	}
	return printJSON(c, txs)
}

func showTransaction(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.Exit("transaction id is required", 2)
	}
	tx, err := appFrom(c).client.Wallets().GetTransaction(c.Context, id)
	if err != nil {
		return err
	}
	return printJSON(c, tx)
}

func dailyMetrics(c *cli.Context) error {
	out, err := appFrom(c).client.Analytics().Daily(c.Context, c.Int("days"))
	if err != nil {
		return err
	}
	return printJSON(c, out)
}

func hourlyMetrics(c *cli.Context) error {
	out, err := appFrom(c).client.Analytics().Hourly(c.Context, c.Int("hours"))
	if err != nil {
		return err
	}
	return printJSON(c, out)
}

func summary(c *cli.Context) error {
	out, err := appFrom(c).client.Analytics().Summary(c.Context, c.String("period"))
	if err != nil {
		return err
	}
	return printJSON(c, out)
}

func userMetrics(c *cli.Context) error {
	a := appFrom(c)
	userID := c.Args().First()
	if userID == "" {
		userID = a.client.Session().Subject
	}

	totals, err := a.client.Analytics().User(c.Context, userID)
	if err != nil {
		return err
	}
	snapshots, err := a.client.Analytics().UserSnapshots(c.Context, userID, c.Int("days"))
	if err != nil {
		return err
	}
	return printJSON(c, map[string]any{"totals": totals, "snapshots": snapshots})
}
