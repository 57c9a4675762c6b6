package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"presale/config"
	"presale/core/state"
	"presale/crypto"
	"presale/native/sale"
	"presale/native/token"
	"presale/observability/logging"
	"presale/rpc"
	"presale/storage"
)

const saleModuleName = "sale"

var genesisAppliedKey = []byte("genesis/applied")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PRESALE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup("presaled", env, cfg.LogFile)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		db, err = storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
	}
	defer db.Close()

	manager := state.NewManager(db)

	owner, err := crypto.DecodeAddress(cfg.OwnerAddress)
	if err != nil {
		logger.Error("invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}
	cap, err := cfg.Cap()
	if err != nil {
		logger.Error("invalid token cap", slog.Any("error", err))
		os.Exit(1)
	}

	tokenEngine, err := token.NewEngine(manager, owner.Raw(), cap)
	if err != nil {
		logger.Error("failed to initialise token engine", slog.Any("error", err))
		os.Exit(1)
	}

	engineAccount := crypto.DeriveModuleAccount(saleModuleName)
	saleEngine, err := sale.NewEngine(manager, tokenEngine, manager, manager, engineAccount, owner.Raw(), cfg.SaleDurationDays)
	if err != nil {
		logger.Error("failed to initialise sale engine", slog.Any("error", err))
		os.Exit(1)
	}

	if err := applyGenesis(cfg, manager, saleEngine, owner.Raw(), logger); err != nil {
		logger.Error("failed to apply genesis", slog.Any("error", err))
		os.Exit(1)
	}
	if err := wireMintAuthority(cfg, tokenEngine, owner.Raw(), engineAccount, logger); err != nil {
		logger.Error("failed to wire mint authority", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(tokenEngine, saleEngine, manager, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	logger.Info("presale daemon running",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("engineAccount", crypto.NewAddress(engineAccount[:]).String()),
	)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
		}
	}
}

// applyGenesis seeds native balances, payment-asset holdings and the initial
// exchange rates exactly once. Later boots leave whatever the administrator
// has configured since.
func applyGenesis(cfg *config.Config, manager *state.Manager, saleEngine *sale.Engine, owner [20]byte, logger *slog.Logger) error {
	var applied bool
	ok, err := manager.KVGet(genesisAppliedKey, &applied)
	if err != nil {
		return err
	}
	if ok && applied {
		return nil
	}

	for _, account := range cfg.Genesis {
		addr, err := crypto.DecodeAddress(account.Address)
		if err != nil {
			return err
		}
		amount, valid := new(big.Int).SetString(strings.TrimSpace(account.Amount), 10)
		if !valid {
			return fmt.Errorf("genesis amount %q is not a base-10 integer", account.Amount)
		}
		if err := manager.SetNativeBalance(addr.Raw(), amount); err != nil {
			return err
		}
	}

	for _, asset := range cfg.PaymentAssets {
		addr, err := crypto.DecodeAddress(asset.Address)
		if err != nil {
			return err
		}
		if err := saleEngine.SetPaymentTokenExchangeRate(owner, addr.Raw(), asset.PartsSell, asset.PartsMint); err != nil {
			return err
		}
		for _, holder := range asset.Holders {
			holderAddr, err := crypto.DecodeAddress(holder.Address)
			if err != nil {
				return err
			}
			amount, valid := new(big.Int).SetString(strings.TrimSpace(holder.Amount), 10)
			if !valid {
				return fmt.Errorf("holder amount %q is not a base-10 integer", holder.Amount)
			}
			if err := manager.SetAssetBalance(addr.Raw(), holderAddr.Raw(), amount); err != nil {
				return err
			}
		}
		logger.Info("payment asset accepted",
			slog.String("symbol", asset.Symbol),
			slog.Uint64("partsSell", asset.PartsSell),
			slog.Uint64("partsMint", asset.PartsMint),
		)
	}
	if cfg.NativePartsSell > 0 && cfg.NativePartsMint > 0 {
		if err := saleEngine.SetNativeExchangeRate(owner, cfg.NativePartsSell, cfg.NativePartsMint); err != nil {
			return err
		}
	}

	return manager.KVPut(genesisAppliedKey, true)
}

// wireMintAuthority hands the token's minting authority to the sale engine's
// account so purchases can mint. The configured mint window is applied first,
// while the configured owner still holds the authority.
func wireMintAuthority(cfg *config.Config, tokenEngine *token.Engine, owner, engineAccount [20]byte, logger *slog.Logger) error {
	current, err := tokenEngine.Owner()
	if err != nil {
		return err
	}
	if current == engineAccount {
		return nil
	}
	if current != owner {
		return fmt.Errorf("token owner %x is neither the configured owner nor the sale engine", current)
	}
	if cfg.MintTimeLimitMinutes > 0 {
		if err := tokenEngine.SetMintTimeLimitation(owner, cfg.MintTimeLimitMinutes); err != nil {
			return err
		}
	}
	if err := tokenEngine.TransferOwnership(owner, engineAccount); err != nil {
		return err
	}
	logger.Info("minting authority granted to sale engine")
	return nil
}
