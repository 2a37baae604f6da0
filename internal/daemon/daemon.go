// Package daemon wires every coordinator component into a running
// process, mirroring daemon/lnd.go's LndMain: parse configuration, open
// the database, dial the three external collaborators, construct the
// watcher and API servers, then block until a shutdown signal arrives.
// Kept separate from cmd/coordinatord/main.go so the wiring itself is
// testable and so main.go stays a thin os.Exit(code) wrapper, the same
// split the teacher draws between cmd/lnd and daemon/lnd.go.
package daemon

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/5day4cast/coordinator/internal/api"
	"github.com/5day4cast/coordinator/internal/bitcoin"
	"github.com/5day4cast/coordinator/internal/chain"
	"github.com/5day4cast/coordinator/internal/config"
	"github.com/5day4cast/coordinator/internal/contract"
	"github.com/5day4cast/coordinator/internal/crypto"
	"github.com/5day4cast/coordinator/internal/enclave"
	"github.com/5day4cast/coordinator/internal/lightning"
	"github.com/5day4cast/coordinator/internal/logging"
	"github.com/5day4cast/coordinator/internal/metrics"
	"github.com/5day4cast/coordinator/internal/oracle"
	"github.com/5day4cast/coordinator/internal/signal"
	"github.com/5day4cast/coordinator/internal/signing"
	"github.com/5day4cast/coordinator/internal/store"
	"github.com/5day4cast/coordinator/internal/tickets"
	"github.com/5day4cast/coordinator/internal/wallet"
	"github.com/5day4cast/coordinator/internal/watcher"
)

// Exit codes named in §6: 0 normal shutdown, 1 configuration error, 2
// database migration failure, 3 an external service was unreachable at
// the startup probe.
const (
	ExitOK               = 0
	ExitConfigError      = 1
	ExitMigrationFailure = 2
	ExitUnreachable      = 3
)

var log = logging.NewSubLogger("DAEM")

// Run is the coordinator process's entire lifecycle. It never calls
// os.Exit itself so cmd/coordinatord/main.go and tests can both drive it
// and observe the resulting code.
func Run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Println(err)
		return ExitConfigError
	}

	if err := logging.InitLogRotator(
		fmt.Sprintf("%s/coordinatord.log", cfg.LogDir),
		cfg.MaxLogSizeKB, cfg.MaxLogFiles,
	); err != nil {
		fmt.Println(err)
		return ExitConfigError
	}
	defer logging.Close()
	// log was created at package init against the stdout-only backend;
	// fetch the re-pointed logger so daemon messages reach the log file.
	log = logging.NewSubLogger("DAEM")
	logging.SetLevels(cfg.DebugLevel)

	if err := signal.Start(); err != nil {
		log.Errorf("installing signal handler: %v", err)
		return ExitConfigError
	}

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Errorf("opening database: %v", err)
		return ExitMigrationFailure
	}
	defer db.Close()

	btcNode, err := bitcoin.Dial(bitcoin.DialConfig{
		Host:       cfg.Bitcoin.RPCHost,
		User:       cfg.Bitcoin.RPCUser,
		Pass:       cfg.Bitcoin.RPCPass,
		DisableTLS: true,
	})
	if err != nil {
		log.Errorf("dialing bitcoin node: %v", err)
		return ExitUnreachable
	}
	defer btcNode.Shutdown()
	if _, err := btcNode.GetBlockHeight(ctx); err != nil {
		log.Errorf("probing bitcoin node: %v", err)
		return ExitUnreachable
	}

	lndClient, err := lightning.Dial(lightning.DialConfig{
		RPCHost:      cfg.Lightning.RPCHost,
		MacaroonPath: cfg.Lightning.MacaroonPath,
		TLSCertPath:  cfg.Lightning.TLSCertPath,
	})
	if err != nil {
		log.Errorf("dialing lightning node: %v", err)
		return ExitUnreachable
	}

	coordinatorWallet, err := wallet.Load(cfg.WalletKeyPath, btcNode.Raw())
	if err != nil {
		log.Errorf("loading coordinator wallet: %v", err)
		return ExitConfigError
	}

	sealer, err := loadSealer(cfg.SealingKeyPath)
	if err != nil {
		log.Errorf("loading sealing key: %v", err)
		return ExitConfigError
	}

	oracleClient := oracle.NewClient(cfg.Oracle.BaseURL)
	oraclePoller := oracle.NewPoller(cfg.TickInterval, time.Second, time.Minute)
	enclaveClient := enclave.NewHTTPClient(cfg.Enclave.BaseURL)

	competitions := store.NewCompetitionRepo(db)
	entries := store.NewEntryRepo(db)
	ticketRepo := store.NewTicketRepo(db)
	sessions := store.NewSigningSessionRepo(db)

	ticketSvc := tickets.NewService(lndClient)
	reaper := &tickets.Reaper{DB: db, Tickets: ticketRepo, Lightning: lndClient, Log: logging.NewSubLogger("TCKT")}

	builder := &contract.Builder{Wallet: coordinatorWallet, FeeRateSatPerVByte: 1}
	signer := &signing.Coordinator{Enclave: enclaveClient, CoordinatorKey: coordinatorWallet.CoordinatorKey(), Sealer: sealer}

	broadcaster := &chain.Broadcaster{Node: btcNode}
	chainWatcher := &chain.Watcher{Node: btcNode}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	w := &watcher.Watcher{
		DB:           db,
		Competitions: competitions,
		Entries:      entries,
		Tickets:      ticketRepo,
		Sessions:     sessions,

		Oracle:       oracleClient,
		OraclePoller: oraclePoller,

		Builder: builder,
		Signing: signer,

		TicketSvc: ticketSvc,
		Reaper:    reaper,

		Broadcaster:  broadcaster,
		ChainWatcher: chainWatcher,
		Node:         btcNode,

		Lightning: lndClient,
		Sealer:    sealer,

		FundingConfThreshold:       cfg.FundingConfThreshold,
		DeltaConfThreshold:         cfg.DeltaConfThreshold,
		ExternalCallTimeout:        cfg.ExternalCallTimeout,
		TickDeadlinePerCompetition: cfg.TickDeadlinePerComp,
		AttestationDeadline:        cfg.AttestationDeadline,

		Log: logging.NewSubLogger("WTCH"),
		Now: time.Now,
	}

	apiServer := api.NewServer(db, competitions, entries, ticketRepo, ticketSvc, logging.NewSubLogger("API "))
	apiServer.Sealer = sealer

	publicSrv := &http.Server{Addr: cfg.API.ListenAddr, Handler: apiServer.PublicRouter()}

	adminRouter := apiServer.AdminRouter()
	adminRouter.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	adminSrv := &http.Server{Addr: cfg.API.AdminListenAddr, Handler: adminRouter}

	go func() {
		if err := publicSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("public api server: %v", err)
		}
	}()
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("admin api server: %v", err)
		}
	}()

	watcherCtx, cancelWatcher := context.WithCancel(ctx)
	go w.Run(watcherCtx, cfg.TickInterval)

	log.Infof("coordinatord started, public=%s admin=%s", cfg.API.ListenAddr, cfg.API.AdminListenAddr)

	<-signal.ShutdownChannel()

	log.Infof("shutdown signal received, draining")
	cancelWatcher()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = publicSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)

	return ExitOK
}

// loadSealer reads a hex-encoded sealing key from path. Unlike the
// coordinator wallet key, this file is never generated on the
// coordinator's behalf: losing it means every already-sealed secret in
// the database becomes unrecoverable, so an operator must provision it
// deliberately.
func loadSealer(path string) (*crypto.Sealer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealing key file %s: %w", path, err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding sealing key file %s: %w", path, err)
	}
	return crypto.NewSealer(key)
}
