// Seed loads demo data into the database: a few markets and funded
// test users. Intended for development environments only.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage/postgres"
	"github.com/pefandor/pravda-market/pkg/util"
)

func main() {
	depositRubles := flag.Int64("deposit", 1000, "demo deposit per user, in rubles")
	flag.Parse()

	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		sugar.Fatalw("database open failed", "error", err)
	}
	defer store.Close()

	markets := []*core.Market{
		{
			Title:       "Will BTC close above $100k this year?",
			Description: "Resolves YES if BTC/USD closes above 100000 on Dec 31.",
			Category:    "crypto",
			Deadline:    time.Now().AddDate(0, 3, 0),
			YesPriceBP:  6000,
			NoPriceBP:   4000,
		},
		{
			Title:       "Will it snow in Moscow before December?",
			Description: "Resolves YES on the first officially recorded snowfall.",
			Category:    "weather",
			Deadline:    time.Now().AddDate(0, 2, 0),
			YesPriceBP:  7500,
			NoPriceBP:   2500,
		},
		{
			Title:       "Will the national team reach the final?",
			Description: "Resolves YES if the team plays in the final match.",
			Category:    "sports",
			Deadline:    time.Now().AddDate(0, 1, 0),
			YesPriceBP:  3000,
			NoPriceBP:   7000,
		},
	}
	for _, m := range markets {
		created, err := store.CreateMarket(ctx, m)
		if err != nil {
			sugar.Fatalw("create market failed", "title", m.Title, "error", err)
		}
		sugar.Infow("market seeded", "market_id", created.ID, "title", created.Title)
	}

	demoUsers := []struct {
		telegramID int64
		username   string
		firstName  string
	}{
		{1000001, "alice_demo", "Alice"},
		{1000002, "bob_demo", "Bob"},
	}
	for _, u := range demoUsers {
		user, err := store.UpsertUserByTelegramID(ctx, u.telegramID, u.username, u.firstName)
		if err != nil {
			sugar.Fatalw("upsert user failed", "telegram_id", u.telegramID, "error", err)
		}
		if _, err := store.AppendLedger(ctx, &core.LedgerEntry{
			UserID:        user.ID,
			AmountKopecks: *depositRubles * core.KopecksPerRuble,
			Type:          core.EntryDeposit,
		}); err != nil {
			sugar.Fatalw("seed deposit failed", "user_id", user.ID, "error", err)
		}
		sugar.Infow("user seeded", "user_id", user.ID, "username", u.username,
			"deposit_rubles", *depositRubles)
	}

	sugar.Infow("seed complete", "markets", len(markets), "users", len(demoUsers))
}
