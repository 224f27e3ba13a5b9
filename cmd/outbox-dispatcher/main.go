package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/coilstock_backend/config"
	"github.com/mmdatafocus/coilstock_backend/workflow"
)

// outbox-dispatcher runs the stock ledger outbox dispatcher loop,
// publishing committed ledger events to Pub/Sub. Safe to run as multiple
// replicas: rows are claimed with SKIP LOCKED.
func main() {
	config.ConnectDatabaseWithRetry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down outbox dispatcher")
		cancel()
	}()

	dispatcher := workflow.NewOutboxDispatcher(config.GetDB(), config.GetLogger())
	log.Printf("outbox dispatcher %s started", dispatcher.DispatcherID)
	dispatcher.Run(ctx)
}
