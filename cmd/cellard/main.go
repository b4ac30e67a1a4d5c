package main

import (
	"context"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/vaultworks/cellar/internal/adaptor"
	"github.com/vaultworks/cellar/internal/cellar"
	"github.com/vaultworks/cellar/internal/config"
	"github.com/vaultworks/cellar/internal/logger"
	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/oracle"
	"github.com/vaultworks/cellar/internal/registry"
	"github.com/vaultworks/cellar/internal/state"
	"github.com/vaultworks/cellar/internal/steward"
	"github.com/vaultworks/cellar/internal/types"
	"github.com/vaultworks/cellar/internal/web"
)

const (
	LOOP_INTERVAL = 1 * time.Minute

	BLOCKS_PER_CYCLE = 10
)

// main is the entry point for the cellar daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Cellar daemon starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Environment Initialization (with Safety Switch) ---
	// The daemon only runs against the simulated protocol environment. The
	// switch keeps a misconfigured deployment from silently running a vault
	// nobody intended to start.
	if os.Getenv("CELLARD_MODE") != "sim" {
		log.Fatal().Msg("CELLARD_MODE is not set to 'sim'. Halting to prevent accidental execution. Set CELLARD_MODE=sim to run.")
	}

	env, cellarInstance, err := bootstrap()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap cellar")
	}

	// --- 3. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, cellarInstance, config.StrategistAddress)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting cellar API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Start Steward Main Loop ---
	stewardInstance, err := steward.New(steward.Config{
		Cellar:         cellarInstance,
		Env:            env,
		BlocksPerCycle: BLOCKS_PER_CYCLE,
		BaseDecimals:   config.BaseDecimals,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create steward instance")
	}

	log.Info().Str("interval", LOOP_INTERVAL.String()).Msg("Starting steward main loop")

	ctx := context.Background()
	stewardInstance.RunLoop(ctx, LOOP_INTERVAL)
}

// bootstrap wires the simulated protocols, the trust registry and the cellar
// itself. The asset table and market parameters here are the daemon's
// genesis; everything after this point changes only through deposits and
// strategist batches.
func bootstrap() (*markets.Environment, *cellar.Cellar, error) {
	tokens := map[string]types.Token{
		"uusdc":   {Symbol: "usdc", Denom: "uusdc", Decimals: 6, PriceUSD: sdkmath.LegacyOneDec()},
		"uatom":   {Symbol: "atom", Denom: "uatom", Decimals: 6, PriceUSD: sdkmath.LegacyNewDec(10)},
		"ureward": {Symbol: "reward", Denom: "ureward", Decimals: 6, PriceUSD: sdkmath.LegacyNewDecWithPrec(5, 1)},
	}

	priceOracle, err := oracle.NewStaticOracle(tokens)
	if err != nil {
		return nil, nil, err
	}

	env := markets.NewEnvironment()
	env.Lending["mainlend"] = markets.NewSimLendingMarket("mainlend", env.Bank, map[string]markets.MarketParams{
		"uusdc": {
			Token:            tokens["uusdc"],
			CollateralFactor: sdkmath.LegacyNewDecWithPrec(93, 2),
			ExchangeRate:     sdkmath.LegacyOneDec(),
		},
		"uatom": {
			Token:            tokens["uatom"],
			CollateralFactor: sdkmath.LegacyNewDecWithPrec(80, 2),
			ExchangeRate:     sdkmath.LegacyOneDec(),
		},
	})
	env.Pools["atomusdc"] = markets.NewSimAMMPool("atomusdc", env.Bank, []string{"uatom", "uusdc"})
	env.Rewards["incentives"] = markets.NewSimRewards("incentives", env.Bank)

	// Seed protocol liquidity so borrows against the sim market can settle.
	if err := env.Bank.Mint("lending/mainlend", sdk.Coin{Denom: "uusdc", Amount: sdkmath.NewInt(1_000_000_000_000)}); err != nil {
		return nil, nil, err
	}
	if err := env.Bank.Mint("lending/mainlend", sdk.Coin{Denom: "uatom", Amount: sdkmath.NewInt(1_000_000_000_000)}); err != nil {
		return nil, nil, err
	}

	reg := registry.New()

	holdingAdaptor := adaptor.NewHoldingAdaptor()
	supplyAdaptor := adaptor.NewLendingSupplyAdaptor()
	collateralAdaptor := adaptor.NewCollateralAdaptor(config.ActiveGuardrails.MinimumHealthFactor)
	debtAdaptor := adaptor.NewDebtAdaptor()
	lpAdaptor := adaptor.NewLPStakeAdaptor(priceOracle)
	claimAdaptor := adaptor.NewRewardClaimAdaptor()

	for _, id := range []string{
		holdingAdaptor.ID(), supplyAdaptor.ID(), collateralAdaptor.ID(),
		debtAdaptor.ID(), lpAdaptor.ID(), claimAdaptor.ID(),
	} {
		if err := reg.TrustAdaptor(id); err != nil {
			return nil, nil, err
		}
	}

	holdingConfig := adaptor.HoldingConfig{Denom: config.BaseDenom}.Encode()
	holdingID, err := reg.TrustPosition(holdingAdaptor.ID(), holdingConfig, false)
	if err != nil {
		return nil, nil, err
	}

	cellarInstance, err := cellar.New(cellar.Config{
		Name:       config.VaultName,
		Symbol:     config.VaultSymbol,
		BaseDenom:  config.BaseDenom,
		Strategist: config.StrategistAddress,
		Registry:   reg,
		Oracle:     priceOracle,
		Env:        env,
		Adaptors: []adaptor.Adaptor{
			holdingAdaptor, supplyAdaptor, collateralAdaptor,
			debtAdaptor, lpAdaptor, claimAdaptor,
		},
		Guardrails: config.ActiveGuardrails,
	})
	if err != nil {
		return nil, nil, err
	}

	strategist := config.StrategistAddress
	if err := cellarInstance.AddAdaptorToCatalogue(strategist, holdingAdaptor.ID()); err != nil {
		return nil, nil, err
	}
	if err := cellarInstance.AddPositionToCatalogue(strategist, holdingID); err != nil {
		return nil, nil, err
	}
	if err := cellarInstance.AddPosition(strategist, 0, holdingID, nil); err != nil {
		return nil, nil, err
	}
	if err := cellarInstance.SetHoldingPosition(strategist, holdingID); err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("cellar", cellarInstance.Name()).
		Uint32("holdingPosition", uint32(holdingID)).
		Msg("Cellar bootstrapped")

	return env, cellarInstance, nil
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
