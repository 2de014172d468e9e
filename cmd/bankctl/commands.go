package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/qcom/banksession/internal/models"
	"github.com/qcom/banksession/internal/repository"
	"github.com/qcom/banksession/internal/session"
)

var errNotLoggedIn = errors.New("not logged in")

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFlags(name string, args []string, define func(fs *flag.FlagSet)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	define(fs)
	return fs.Parse(args)
}

// result turns an expected failure into an error for the exit status.
func result(res session.Result, err error) error {
	if err != nil {
		return err
	}
	if !res.Success {
		if res.Error == "" {
			return errors.New("operation failed")
		}
		return errors.New(res.Error)
	}
	return nil
}

// requireSession resumes the stored session and applies the protected-view guard.
func requireSession(ctx context.Context, a *app) error {
	if _, err := a.ctrl.Restore(ctx); err != nil {
		return err
	}
	if !a.guard.RequireAuth() {
		return errNotLoggedIn
	}
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	var email, password string
	if err := parseFlags("login", args, func(fs *flag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&password, "password", "", "account password")
	}); err != nil {
		return err
	}

	if err := result(a.ctrl.Login(ctx, email, password)); err != nil {
		return err
	}
	return printJSON(a.ctrl.User().Get())
}

func runRegister(ctx context.Context, a *app, args []string) error {
	var email, password, confirm string
	if err := parseFlags("register", args, func(fs *flag.FlagSet) {
		fs.StringVar(&email, "email", "", "account email")
		fs.StringVar(&password, "password", "", "account password")
		fs.StringVar(&confirm, "confirm", "", "password confirmation")
	}); err != nil {
		return err
	}

	if err := result(a.ctrl.Register(ctx, email, password, confirm)); err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"registered":    true,
		"authenticated": a.ctrl.IsAuthenticated().Get(),
	})
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	return result(a.ctrl.Logout(ctx))
}

func runRenew(ctx context.Context, a *app, _ []string) error {
	return result(a.ctrl.Renew(ctx))
}

func runProfile(ctx context.Context, a *app, _ []string) error {
	if err := requireSession(ctx, a); err != nil {
		return err
	}
	return printJSON(a.ctrl.User().Get())
}

func runAccounts(ctx context.Context, a *app, _ []string) error {
	if err := requireSession(ctx, a); err != nil {
		return err
	}
	list, err := a.accounts.FetchAll(ctx)
	if err != nil {
		return err
	}
	return printJSON(list)
}

func runAccount(ctx context.Context, a *app, args []string) error {
	var number int64
	if err := parseFlags("account", args, func(fs *flag.FlagSet) {
		fs.Int64Var(&number, "number", 0, "account number")
	}); err != nil {
		return err
	}
	if err := requireSession(ctx, a); err != nil {
		return err
	}

	account, err := a.accounts.FetchAccount(ctx, number)
	if err != nil {
		return err
	}
	return printJSON(account)
}

func runCreateAccount(ctx context.Context, a *app, args []string) error {
	var balance int64
	if err := parseFlags("create-account", args, func(fs *flag.FlagSet) {
		fs.Int64Var(&balance, "balance", 0, "opening balance")
	}); err != nil {
		return err
	}
	if err := requireSession(ctx, a); err != nil {
		return err
	}

	resp, err := a.accounts.CreateAccount(ctx, balance)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runDeleteAccount(ctx context.Context, a *app, args []string) error {
	var number int64
	if err := parseFlags("delete-account", args, func(fs *flag.FlagSet) {
		fs.Int64Var(&number, "number", 0, "account number")
	}); err != nil {
		return err
	}
	if err := requireSession(ctx, a); err != nil {
		return err
	}

	ok, err := a.accounts.DeleteAccount(ctx, number)
	if err != nil {
		return err
	}
	return printJSON(models.DeleteAccountResponse{Success: ok})
}

func runTransact(ctx context.Context, a *app, args []string) error {
	var accountID, txType string
	var amount int64
	if err := parseFlags("transact", args, func(fs *flag.FlagSet) {
		fs.StringVar(&accountID, "account-id", "", "account id")
		fs.Int64Var(&amount, "amount", 0, "amount in minor units")
		fs.StringVar(&txType, "type", string(models.Deposit), "DEPOSIT or WITHDRAWAL")
	}); err != nil {
		return err
	}
	if err := requireSession(ctx, a); err != nil {
		return err
	}

	resp, err := a.accounts.CreateTransaction(ctx, models.CreateTransactionRequest{
		AccountID:       accountID,
		Amount:          amount,
		TransactionType: models.TransactionType(txType),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runTransactions(ctx context.Context, a *app, args []string) error {
	var accountID string
	if err := parseFlags("transactions", args, func(fs *flag.FlagSet) {
		fs.StringVar(&accountID, "account-id", "", "account id")
	}); err != nil {
		return err
	}
	if err := requireSession(ctx, a); err != nil {
		return err
	}

	list, err := a.accounts.FetchTransactions(ctx, accountID)
	if err != nil {
		return err
	}
	return printJSON(list)
}

// runWatch follows a shared session until it is cleared elsewhere or the
// process is interrupted. Only the redis backend publishes events.
func runWatch(ctx context.Context, a *app, _ []string) error {
	watcher, ok := a.store.(repository.CredentialWatcher)
	if !ok {
		return fmt.Errorf("storage backend %q does not publish session events", a.cfg.Storage.Backend)
	}
	if err := requireSession(ctx, a); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unsubscribe := a.ctrl.IsAuthenticated().Subscribe(func(authenticated bool) {
		if !authenticated {
			cancel()
		}
	})
	defer unsubscribe()

	fmt.Fprintln(os.Stderr, "watching session", a.cfg.Storage.Namespace)
	err := a.ctrl.Follow(ctx, watcher)
	if errors.Is(err, context.Canceled) {
		return printJSON(map[string]bool{"authenticated": a.ctrl.IsAuthenticated().Get()})
	}
	return err
}

// runDemo walks through a full session against the configured backend.
func runDemo(ctx context.Context, a *app, args []string) error {
	var email, password string
	if err := parseFlags("demo", args, func(fs *flag.FlagSet) {
		fs.StringVar(&email, "email", "demo@example.com", "account email")
		fs.StringVar(&password, "password", "demo-password", "account password")
	}); err != nil {
		return err
	}

	res, err := a.ctrl.Register(ctx, email, password, password)
	if err != nil {
		return err
	}
	if !res.Success {
		a.logger.WithField("reason", res.Error).Info("Registration skipped")
	}
	if !a.ctrl.IsAuthenticated().Get() {
		if err := result(a.ctrl.Login(ctx, email, password)); err != nil {
			return err
		}
	}

	created, err := a.accounts.CreateAccount(ctx, 1000)
	if err != nil {
		return err
	}
	if _, err := a.accounts.CreateTransaction(ctx, models.CreateTransactionRequest{
		AccountID:       created.AccountID,
		Amount:          250,
		TransactionType: models.Deposit,
	}); err != nil {
		return err
	}
	if err := result(a.ctrl.Renew(ctx)); err != nil {
		return err
	}

	txs, err := a.accounts.FetchTransactions(ctx, created.AccountID)
	if err != nil {
		return err
	}
	if err := printJSON(map[string]interface{}{
		"user":         a.ctrl.User().Get(),
		"accounts":     a.accounts.Accounts().Get(),
		"transactions": txs,
	}); err != nil {
		return err
	}

	return result(a.ctrl.Logout(ctx))
}
