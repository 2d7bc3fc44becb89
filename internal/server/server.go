package server

import (
	"context"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tesseralabs/tessera-api/internal/audit"
	awsClient "github.com/tesseralabs/tessera-api/internal/client/aws"
	"github.com/tesseralabs/tessera-api/internal/client/loghub"
	"github.com/tesseralabs/tessera-api/internal/client/rates"
	"github.com/tesseralabs/tessera-api/internal/escrow"
	"github.com/tesseralabs/tessera-api/internal/ethsign"
	"github.com/tesseralabs/tessera-api/internal/handlers"
	"github.com/tesseralabs/tessera-api/internal/logger"
	"github.com/tesseralabs/tessera-api/internal/middleware"
	"github.com/tesseralabs/tessera-api/internal/paymaster"
	"github.com/tesseralabs/tessera-api/internal/quote"
	"github.com/tesseralabs/tessera-api/internal/sponsor"
)

// Handler definitions
var (
	sponsorHandler *handlers.SponsorHandler
	escrowHandler  *handlers.EscrowHandler
	quoteHandler   *handlers.QuoteHandler
	auditHandler   *handlers.AuditHandler
	healthHandler  *handlers.HealthHandler
)

// InitializeHandlers builds every service from environment configuration and
// wires the handler singletons. Called once at startup, before SetupRouter.
func InitializeHandlers(ctx context.Context) {
	signerKey, err := awsClient.LoadSecret(ctx, "SPONSOR_SIGNER_KEY_ARN", "SPONSOR_SIGNER_KEY")
	if err != nil {
		logger.Fatal("Sponsor signing key is not configured", zap.Error(err))
	}
	key, err := ethsign.NewSigner(signerKey)
	if err != nil {
		logger.Fatal("Invalid sponsor signing key", zap.Error(err))
	}

	chainID := envBigInt("CHAIN_ID", big.NewInt(11155111))
	entryPoint := envAddress("ENTRY_POINT_ADDRESS", "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	nativePaymasterAddr := envAddress("PAYMASTER_ADDRESS", "0x0000000000000000000000000000000000000001")
	tokenPaymasterAddr := envAddress("TOKEN_PAYMASTER_ADDRESS", "0x0000000000000000000000000000000000000002")
	bridge := requiredAddress("BRIDGE_ADDRESS")
	arbitrator := requiredAddress("ARBITRATOR_ADDRESS")

	policies := sponsor.NewPolicyStore(sponsor.DefaultWindow, sponsor.DefaultWindowCap)
	signer := sponsor.NewSigner(policies, key, chainID, entryPoint, map[sponsor.Variant]common.Address{
		sponsor.VariantNative: nativePaymasterAddr,
		sponsor.VariantToken:  tokenPaymasterAddr,
	})

	nativePaymaster := paymaster.New(nativePaymasterAddr, entryPoint, chainID, key.Address())
	tokenLedger := paymaster.NewMemoryTokenLedger()
	tokenPaymaster := paymaster.NewToken(
		tokenPaymasterAddr, entryPoint, chainID, key.Address(),
		tokenLedger,
		envBigInt("TOKEN_PRICE_PER_FEE_UNIT", big.NewInt(1_000_000)),
		uint8(envInt("TOKEN_DECIMALS", 6)),
	)

	escrowService := escrow.NewService(escrow.NewMemoryLedger(), bridge, arbitrator)

	quoteService := quote.NewService(key, rates.NewClient(os.Getenv("RATES_API_KEY")), quote.DefaultAssets())

	var topicLog audit.TopicLog
	if loghubURL := os.Getenv("LOGHUB_URL"); loghubURL != "" {
		topicLog = loghub.NewClient(loghubURL, os.Getenv("LOGHUB_API_KEY"))
	} else {
		logger.Warn("LOGHUB_URL not set, audit commitments will be locally sequenced")
	}
	auditService := audit.NewService(topicLog)

	commonServices := handlers.NewCommonServices(
		policies,
		signer,
		escrowService,
		quoteService,
		auditService,
		nativePaymaster,
		tokenPaymaster,
	)

	sponsorHandler = handlers.NewSponsorHandler(commonServices)
	escrowHandler = handlers.NewEscrowHandler(commonServices)
	quoteHandler = handlers.NewQuoteHandler(commonServices)
	auditHandler = handlers.NewAuditHandler(commonServices)
	healthHandler = handlers.NewHealthHandler()

	logger.Info("Handlers initialized",
		zap.String("sponsor_signer", key.Address().Hex()),
		zap.String("chain_id", chainID.String()),
		zap.String("entry_point", entryPoint.Hex()),
	)
}

// SetupRouter registers middleware and routes on the given engine
func SetupRouter(router *gin.Engine) {
	corsConfig := cors.DefaultConfig()
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		corsConfig.AllowOrigins = strings.Split(origins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, handlers.CallerAddressHeader, middleware.CorrelationIDHeader)
	router.Use(cors.New(corsConfig))

	router.Use(middleware.CorrelationID())
	router.Use(middleware.NewRateLimiter(envInt("RATE_LIMIT_RPS", 50), envInt("RATE_LIMIT_BURST", 100)).Middleware())

	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1")
	{
		sponsorRoutes := v1.Group("/sponsor")
		{
			sponsorRoutes.POST("/policies", sponsorHandler.RegisterPolicy)
			sponsorRoutes.POST("/sign", sponsorHandler.Sign)
			sponsorRoutes.GET("/failures", sponsorHandler.DemoFailures)
		}

		escrowRoutes := v1.Group("/escrow")
		{
			escrowRoutes.POST("/deposit", escrowHandler.Deposit)
			escrowRoutes.GET("/:scope_id", escrowHandler.Info)
			escrowRoutes.POST("/:scope_id/release", escrowHandler.Release)
			escrowRoutes.POST("/:scope_id/refund", escrowHandler.Refund)
			escrowRoutes.POST("/:scope_id/dispute", escrowHandler.Dispute)
			escrowRoutes.POST("/:scope_id/resolve", escrowHandler.Resolve)
		}

		quoteRoutes := v1.Group("/quotes")
		{
			quoteRoutes.POST("", quoteHandler.Generate)
			quoteRoutes.POST("/verify", quoteHandler.Verify)
		}

		auditRoutes := v1.Group("/audit")
		{
			auditRoutes.POST("/commitments", auditHandler.Publish)
			auditRoutes.GET("/commitments/:scope_id", auditHandler.Log)
			auditRoutes.POST("/commitments/verify", auditHandler.Verify)
		}
	}
}

func envAddress(name, fallback string) common.Address {
	value := os.Getenv(name)
	if value == "" {
		value = fallback
	}
	if !common.IsHexAddress(value) {
		logger.Fatal("Invalid address in environment", zap.String("var", name), zap.String("value", value))
	}
	return common.HexToAddress(value)
}

func requiredAddress(name string) common.Address {
	value := os.Getenv(name)
	if value == "" {
		logger.Fatal("Required environment variable is not set", zap.String("var", name))
	}
	if !common.IsHexAddress(value) {
		logger.Fatal("Invalid address in environment", zap.String("var", name), zap.String("value", value))
	}
	return common.HexToAddress(value)
}

func envBigInt(name string, fallback *big.Int) *big.Int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		logger.Fatal("Invalid integer in environment", zap.String("var", name), zap.String("value", value))
	}
	return parsed
}

func envInt(name string, fallback int) int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logger.Fatal("Invalid integer in environment", zap.String("var", name), zap.Error(err))
	}
	return parsed
}
