package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PayoutStatus represents the state of a withdrawal request
type PayoutStatus string

const (
	StatusAccepted PayoutStatus = "ACCEPTED"
	StatusRejected PayoutStatus = "REJECTED"
	StatusPaid     PayoutStatus = "PAID"
)

// WithdrawalRequest is the payload the bot submits for an accepted withdrawal
type WithdrawalRequest struct {
	RequestID string  `json:"request_id" binding:"required"`
	UserID    int64   `json:"user_id" binding:"required"`
	Username  string  `json:"username"`
	Amount    float64 `json:"amount" binding:"required"`
}

// WithdrawalResponse is returned for a submitted withdrawal
type WithdrawalResponse struct {
	RequestID  string       `json:"request_id"`
	Status     PayoutStatus `json:"status"`
	DeskID     string       `json:"desk_id"`
	AcceptedAt time.Time    `json:"accepted_at"`
	ErrorMsg   string       `json:"error_message,omitempty"`
}

// StatusResponse reports the current state of a previously submitted request
type StatusResponse struct {
	RequestID string       `json:"request_id"`
	Status    PayoutStatus `json:"status"`
	DeskID    string       `json:"desk_id"`
	PaidAt    *time.Time   `json:"paid_at,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status     string    `json:"status"`
	DeskID     string    `json:"desk_id"`
	Timestamp  time.Time `json:"timestamp"`
	AcceptRate float64   `json:"accept_rate"`
}

// MockPayoutDesk simulates the manual payout processing side
type MockPayoutDesk struct {
	acceptRate float64
	minDelay   time.Duration
	maxDelay   time.Duration
	deskID     string
	rng        *rand.Rand
}

func NewMockPayoutDesk(acceptRate float64, minDelay, maxDelay time.Duration) *MockPayoutDesk {
	return &MockPayoutDesk{
		acceptRate: acceptRate,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		deskID:     "MOCK_DESK_" + uuid.New().String()[:8],
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// simulateIntake simulates reviewing an incoming withdrawal
func (m *MockPayoutDesk) simulateIntake(req *WithdrawalRequest) *WithdrawalResponse {
	time.Sleep(m.randomDelay())

	response := &WithdrawalResponse{
		RequestID:  req.RequestID,
		DeskID:     m.deskID,
		AcceptedAt: time.Now(),
	}

	if m.shouldAccept() {
		response.Status = StatusAccepted

		log.Info().
			Str("request_id", req.RequestID).
			Int64("user_id", req.UserID).
			Float64("amount", req.Amount).
			Msg("Withdrawal accepted")
	} else {
		response.Status = StatusRejected
		response.ErrorMsg = "Manual review required"

		log.Warn().
			Str("request_id", req.RequestID).
			Int64("user_id", req.UserID).
			Msg("Withdrawal rejected")
	}

	return response
}

func (m *MockPayoutDesk) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockPayoutDesk) shouldAccept() bool {
	return m.rng.Float64() < m.acceptRate
}

// Handler struct holds the mock desk and routes
type Handler struct {
	desk *MockPayoutDesk
}

func NewHandler(desk *MockPayoutDesk) *Handler {
	return &Handler{desk: desk}
}

// SubmitWithdrawal handles incoming withdrawal submissions
func (h *Handler) SubmitWithdrawal(c *gin.Context) {
	var req WithdrawalRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Str("request_id", req.RequestID).
		Int64("user_id", req.UserID).
		Float64("amount", req.Amount).
		Msg("Received withdrawal request")

	response := h.desk.simulateIntake(&req)

	statusCode := http.StatusAccepted
	if response.Status == StatusRejected {
		statusCode = http.StatusUnprocessableEntity
	}

	c.JSON(statusCode, response)
}

// GetStatus handles status check requests
func (h *Handler) GetStatus(c *gin.Context) {
	requestID := c.Param("request_id")

	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "request_id is required",
		})
		return
	}

	response := StatusResponse{
		RequestID: requestID,
		DeskID:    h.desk.deskID,
	}

	if h.desk.shouldAccept() {
		now := time.Now()
		response.Status = StatusPaid
		response.PaidAt = &now
	} else {
		response.Status = StatusAccepted
	}

	c.JSON(http.StatusOK, response)
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "healthy",
		DeskID:     h.desk.deskID,
		Timestamp:  time.Now(),
		AcceptRate: h.desk.acceptRate,
	})
}

// UpdateConfig allows changing the accept rate at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		AcceptRate *float64 `json:"accept_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.AcceptRate != nil {
		if *config.AcceptRate >= 0 && *config.AcceptRate <= 1.0 {
			h.desk.acceptRate = *config.AcceptRate
			log.Info().Float64("rate", *config.AcceptRate).Msg("Updated accept rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Configuration updated",
		"accept_rate": h.desk.acceptRate,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/withdrawals", handler.SubmitWithdrawal)
		v1.GET("/withdrawals/:request_id", handler.GetStatus)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	acceptRate := getEnvFloat("ACCEPT_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 100*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 500*time.Millisecond)

	desk := NewMockPayoutDesk(acceptRate, minDelay, maxDelay)
	handler := NewHandler(desk)
	router := SetupRouter(handler)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info().
			Str("port", port).
			Str("desk_id", desk.deskID).
			Float64("accept_rate", acceptRate).
			Msg("Mock payout desk starting")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down payout desk...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Forced shutdown")
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
