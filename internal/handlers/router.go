package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/prepline/attempt-service/internal/config"
	"github.com/prepline/attempt-service/internal/repositories"
	"github.com/prepline/attempt-service/internal/services"
	"github.com/prepline/attempt-service/internal/utils"
	"github.com/prepline/attempt-service/internal/validator"
)

type HandlerManager struct {
	attemptHandler *AttemptHandler
	groupHandler   *GroupHandler
	userHandler    *UserHandler
	authMiddleware *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		groupHandler:   NewGroupHandler(serviceManager.Group(), serviceManager.Leaderboard(), validator, logger),
		userHandler:    NewUserHandler(userRepo, logger),
		authMiddleware: authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("", hm.attemptHandler.ListMyAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answers", hm.attemptHandler.UpsertAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/overview", hm.attemptHandler.GetOverview)
			attempts.GET("/:id/analysis", hm.attemptHandler.GetAnalysis)
		}

		// Group routes
		groups := v1.Group("/groups")
		{
			groups.POST("", hm.groupHandler.CreateGroup)
			groups.GET("", hm.groupHandler.ListMyGroups)
			groups.POST("/join", hm.groupHandler.JoinGroup)
			groups.GET("/:id", hm.groupHandler.GetGroup)
			groups.GET("/:id/members", hm.groupHandler.ListMembers)
			groups.POST("/:id/invites", hm.groupHandler.CreateInvite)

			// Assignments; service enforces the owner/mod gate
			groups.POST("/:id/tests", hm.groupHandler.AssignTest)
			groups.GET("/:id/tests", hm.groupHandler.ListAssignments)

			// Leaderboard
			groups.GET("/:id/tests/:test_id/leaderboard", hm.groupHandler.GetLeaderboard)
			groups.GET("/:id/tests/:test_id/leaderboard/export", hm.groupHandler.ExportLeaderboard)
		}

		// User lookup (profiles shown in member listings)
		users := v1.Group("/users")
		{
			users.GET("/:id", hm.userHandler.GetUser)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "attempt-service",
		})
	})
}
