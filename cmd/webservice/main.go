package main

import (
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"xclusive3d/payment/stripe"
	"xclusive3d/utils"
	"xclusive3d/web/billing"
	"xclusive3d/web/controllers"
	"xclusive3d/web/db"
	"xclusive3d/web/email"
	"xclusive3d/web/middleware"
	"xclusive3d/web/storage"
)

func main() {
	utils.LoadEnv()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	conn, err := db.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := db.Sync(conn); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	stripeClient := stripe.New(os.Getenv("STRIPE_SECRET_KEY"))
	vatService := billing.NewVATService(billing.NewVIESClient())
	mailer := email.NewSender(os.Getenv("SMTP2GO_API_KEY"), os.Getenv("EMAIL_FROM"))

	store, err := storage.NewPresigner(storage.Config{
		Endpoint:     os.Getenv("R2_ENDPOINT"),
		Region:       os.Getenv("R2_REGION"),
		AccessKey:    os.Getenv("R2_ACCESS_KEY_ID"),
		SecretKey:    os.Getenv("R2_SECRET_ACCESS_KEY"),
		Bucket:       os.Getenv("R2_BUCKET"),
		UsePathStyle: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("storage configuration failed")
	}

	api := controllers.New(conn, stripeClient, vatService, mailer, store)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{os.Getenv("FRONTEND_URL")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	limiter := middleware.NewRateLimiter(120)
	limiter.StartCleanup(10 * time.Minute)
	r.Use(limiter.Middleware())

	users := r.Group("/api/users")
	{
		users.POST("/register", api.Register)
		users.GET("/verify-email", api.VerifyEmail)
		users.POST("/login", api.Login)
		users.GET("/me", api.Me)
		users.PUT("/update", api.UpdateProfile)
		users.DELETE("/:id", api.DeleteUser)
		users.POST("/reset-password", api.ResetPasswordRequest)
		users.POST("/reset-password/confirm", api.ResetPasswordConfirm)
	}

	wallet := r.Group("/api/wallet")
	{
		wallet.POST("/add-funds", api.AddFunds)
		wallet.POST("/checkVat", api.CheckVAT)
		wallet.POST("/validate", api.ValidateVAT)
		wallet.GET("/all", api.GetWallets)
		wallet.POST("/create-setup-intent", api.CreateSetupIntent)
		wallet.POST("/create-payment-intent-all-methods", api.CreatePaymentIntentAllMethods)
		wallet.POST("/add-billing-method", api.AddBillingMethod)
		wallet.PUT("/set-primary-card", api.SetPrimaryCard)
		wallet.DELETE("/remove-card", api.RemoveCard)

		wallet.GET("/all-customers-credits", api.AllCustomersCredits)
		wallet.GET("/credits-stats", api.CreditsStats)
		wallet.POST("/customers/add-credits", api.AddCredits)
		wallet.POST("/customers/remove-credits", api.RemoveCredits)

		wallet.GET("/orders/all", api.AllOrders)
		wallet.GET("/orders-stats", api.OrderStats)
		wallet.POST("/orders/manual-order", api.ManualOrder)
		wallet.DELETE("/orders/:id", api.DeleteOrder)
	}

	coupons := r.Group("/api/coupons")
	{
		coupons.POST("/create", api.CreateCoupon)
		coupons.GET("/all", api.GetAllCoupons)
		coupons.GET("/get-coupon-by-id/:id", api.GetCouponByID)
		coupons.PUT("/update/:id", api.UpdateCoupon)
		coupons.DELETE("/delete/:id", api.DeleteCoupon)
		coupons.GET("/stats", api.CouponStats)
	}

	videos := r.Group("/api/videos")
	{
		videos.POST("/upload-url", api.UploadURL)
		videos.POST("/metadata", api.SaveMetadata)
		videos.POST("/conversion-callback/:regkey", api.ConversionCallback)
		videos.GET("/queue", api.Queue)
		videos.GET("/stats", api.VideoStats)
		videos.GET("/:id/download-url", api.DownloadURL)
	}

	r.GET("/health", api.Health)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Info().Str("port", port).Msg("webservice listening")
	if err := r.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
