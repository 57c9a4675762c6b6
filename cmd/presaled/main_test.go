package main

import (
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"presale/config"
	"presale/core/state"
	"presale/crypto"
	"presale/native/sale"
	"presale/native/token"
	"presale/storage"
)

func testStack(t *testing.T, cfg *config.Config) (*state.Manager, *token.Engine, *sale.Engine, [20]byte, [20]byte) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	owner, err := crypto.DecodeAddress(cfg.OwnerAddress)
	require.NoError(t, err)
	cap, err := cfg.Cap()
	require.NoError(t, err)

	tok, err := token.NewEngine(manager, owner.Raw(), cap)
	require.NoError(t, err)
	engineAccount := crypto.DeriveModuleAccount(saleModuleName)
	saleEngine, err := sale.NewEngine(manager, tok, manager, manager, engineAccount, owner.Raw(), cfg.SaleDurationDays)
	require.NoError(t, err)
	return manager, tok, saleEngine, owner.Raw(), engineAccount
}

func testConfig() *config.Config {
	addr := func(b byte) string {
		raw := make([]byte, 20)
		raw[19] = b
		return crypto.NewAddress(raw).String()
	}
	return &config.Config{
		OwnerAddress:         addr(1),
		TokenCap:             "10000000",
		SaleDurationDays:     60,
		MintTimeLimitMinutes: 87600,
		NativePartsSell:      2,
		NativePartsMint:      3,
		PaymentAssets: []config.PaymentAsset{
			{
				Symbol: "USDX", Address: addr(9), PartsSell: 1, PartsMint: 1,
				Holders: []config.GenesisAccount{
					{Address: addr(2), Amount: "250"},
				},
			},
		},
		Genesis: []config.GenesisAccount{
			{Address: addr(2), Amount: "1000"},
		},
	}
}

func TestApplyGenesisRunsOnce(t *testing.T) {
	cfg := testConfig()
	manager, _, saleEngine, owner, _ := testStack(t, cfg)
	logger := slog.Default()

	require.NoError(t, applyGenesis(cfg, manager, saleEngine, owner, logger))

	buyer, err := crypto.DecodeAddress(cfg.Genesis[0].Address)
	require.NoError(t, err)
	balance, err := manager.NativeBalance(buyer.Raw())
	require.NoError(t, err)
	require.Equal(t, "1000", balance.String())

	asset, err := crypto.DecodeAddress(cfg.PaymentAssets[0].Address)
	require.NoError(t, err)
	pair, err := saleEngine.ExchangeRate(asset.Raw())
	require.NoError(t, err)
	require.True(t, pair.Active())

	// Asset holders are funded so sale_buyTokens has something to pull.
	assetBal, err := manager.BalanceOf(asset.Raw(), buyer.Raw())
	require.NoError(t, err)
	require.Equal(t, "250", assetBal.String())

	nativePair, err := saleEngine.NativeExchangeRate()
	require.NoError(t, err)
	require.Equal(t, uint64(2), nativePair.PartsSell)

	// Administrator changes after genesis must survive a restart.
	require.NoError(t, saleEngine.UnsetPaymentTokenExchangeRate(owner, asset.Raw()))
	require.NoError(t, applyGenesis(cfg, manager, saleEngine, owner, logger))
	pair, err = saleEngine.ExchangeRate(asset.Raw())
	require.NoError(t, err)
	require.False(t, pair.Active())
}

func TestGenesisSeededAssetPurchase(t *testing.T) {
	cfg := testConfig()
	manager, tok, saleEngine, owner, engineAccount := testStack(t, cfg)
	logger := slog.Default()

	require.NoError(t, applyGenesis(cfg, manager, saleEngine, owner, logger))
	require.NoError(t, wireMintAuthority(cfg, tok, owner, engineAccount, logger))

	buyer, err := crypto.DecodeAddress(cfg.Genesis[0].Address)
	require.NoError(t, err)
	asset, err := crypto.DecodeAddress(cfg.PaymentAssets[0].Address)
	require.NoError(t, err)

	// The seeded holder can approve the engine and complete a purchase.
	require.NoError(t, manager.Approve(asset.Raw(), buyer.Raw(), engineAccount, big.NewInt(250)))
	receipt, err := saleEngine.BuyTokens(buyer.Raw(), big.NewInt(40), asset.Raw())
	require.NoError(t, err)
	require.Equal(t, "40", receipt.PaymentAmount.String())

	balance, err := tok.BalanceOf(buyer.Raw())
	require.NoError(t, err)
	require.Equal(t, "40", balance.String())
}

func TestWireMintAuthority(t *testing.T) {
	cfg := testConfig()
	_, tok, _, owner, engineAccount := testStack(t, cfg)
	logger := slog.Default()

	require.NoError(t, wireMintAuthority(cfg, tok, owner, engineAccount, logger))

	current, err := tok.Owner()
	require.NoError(t, err)
	require.Equal(t, engineAccount, current)

	limit, err := tok.MintTimeLimitation()
	require.NoError(t, err)
	require.Equal(t, cfg.MintTimeLimitMinutes*60, limit)

	// Idempotent on restart.
	require.NoError(t, wireMintAuthority(cfg, tok, owner, engineAccount, logger))

	// The engine account can mint now.
	buyer, err := crypto.DecodeAddress(cfg.Genesis[0].Address)
	require.NoError(t, err)
	require.NoError(t, tok.Mint(engineAccount, buyer.Raw(), big.NewInt(5)))
}
