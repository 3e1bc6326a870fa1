package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/AARTI756/bank/config"
	"github.com/AARTI756/bank/controller"
	"github.com/AARTI756/bank/repository/database"
	"github.com/AARTI756/bank/repository/messaging"
	"github.com/AARTI756/bank/service"
)

// preloaded accounts for demo branches, balances in minor units.
const (
	preloadBalance  = 100000
	preloadAccount1 = 1001
	preloadAccount2 = 1002
)

func main() {
	log.Println("Reading config")
	cfg := config.NewConfig()
	log.SetPrefix("[" + cfg.Name + "] ")

	log.Println("Opening branch store...")
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalln("Could not open branch store: ", err.Error())
	}
	defer store.Close()

	if cfg.Preload {
		preload(store, cfg.Name)
	}

	log.Println("Opening operation log...")
	oplog, err := database.NewOperationLog(cfg.OpLogConfig)
	if err != nil {
		log.Fatalln("Could not open operation log: ", err.Error())
	}

	engine := service.NewEngine(store, oplog)

	log.Println("Initializing participant...")
	participant := service.NewTxParticipant(store, store, oplog, cfg.TxDeadline)

	log.Println("Recovering last state...")
	if err := participant.Recover(); err != nil {
		log.Fatalln("Could not recover state: ", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go participant.RunExpiry(ctx, cfg.ExpiryEvery)

	log.Println("Initializing coordinator...")
	coordinator := service.NewTxCoordinator(participant, engine, &service.CoordinatorConfig{
		Branch:         cfg.Name,
		SelfAddrs:      []string{cfg.Addr(), net.JoinHostPort("127.0.0.1", cfg.Port)},
		PrepareTimeout: cfg.PrepareTimeout,
		RetryBackoff:   cfg.RetryBackoff,
		MaxRetries:     cfg.MaxRetries,
		NewPeer: func(addr string) service.Peer {
			return messaging.NewBranchClient(addr)
		},
		Unresolved: store,
	})

	server := controller.NewBranchServer(engine, participant, coordinator)

	log.Println("Getting listener on: ", cfg.Addr())
	lis, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		log.Fatalln("Failed to start listening: ", err.Error())
	}

	log.Println("Starting server...")
	go func() {
		if err := server.Serve(lis); err != nil {
			select {
			case <-ctx.Done():
			default:
				log.Fatalln("Failed to serve: ", err.Error())
			}
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	_ = lis.Close()
}

func openStore(cfg *config.Config) (database.Store, error) {
	if cfg.InMemory {
		return database.NewMemoryStore(), nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	return database.NewSQLiteStore(cfg.LedgerPath())
}

// preload seeds two demo accounts if they do not exist yet.
func preload(store database.Store, branch string) {
	for i, accountNo := range []int64{preloadAccount1, preloadAccount2} {
		if _, err := store.Get(accountNo); err == nil {
			continue
		}
		name := fmt.Sprintf("User_%s_%d", branch, i+1)
		if err := store.Create(accountNo, name, preloadBalance); err != nil {
			log.Println("Could not preload account: ", err.Error())
		}
	}
}
