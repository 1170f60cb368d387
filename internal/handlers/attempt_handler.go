package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prepline/attempt-service/internal/services"
	"github.com/prepline/attempt-service/internal/utils"
	"github.com/prepline/attempt-service/internal/validator"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	validator      *validator.Validator
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	validator *validator.Validator,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		validator:      validator,
	}
}

// StartAttempt starts or resumes an attempt for a test
// @Summary Start attempt
// @Description Starts a new attempt, or resumes the open one for this test
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.StartAttemptRequest true "Start attempt data"
// @Success 201 {object} services.AttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting attempt")

	var req services.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if attempt.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, attempt)
}

// UpsertAnswer applies a partial update to the answer for one question
// @Summary Upsert answer
// @Description Merges the given response, visited and marked flags over the stored answer; omitted fields are kept
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param answer body services.UpsertAnswerRequest true "Answer data"
// @Success 200 {object} services.AnswerState
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/answers [put]
func (h *AttemptHandler) UpsertAnswer(c *gin.Context) {
	attemptID := h.uuidParam(c, "id")
	if attemptID == "" {
		return
	}

	var req services.UpsertAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	state, err := h.attemptService.UpsertAnswer(c.Request.Context(), attemptID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// SubmitAttempt finalizes and grades an attempt
// @Summary Submit attempt
// @Description Submits the attempt; repeat submits return the stored result
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.SubmitResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID := h.uuidParam(c, "id")
	if attemptID == "" {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID)

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAttempt retrieves an attempt by ID
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	attemptID := h.uuidParam(c, "id")
	if attemptID == "" {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetOverview returns the live answer palette for an attempt
// @Summary Get attempt overview
// @Description Returns per-question answered/visited/marked state and time left
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.OverviewResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/overview [get]
func (h *AttemptHandler) GetOverview(c *gin.Context) {
	attemptID := h.uuidParam(c, "id")
	if attemptID == "" {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	overview, err := h.attemptService.GetOverview(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// GetAnalysis returns the post-submit report for an attempt
// @Summary Get attempt analysis
// @Description Returns the graded report with answer keys; submitted attempts only
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.AnalysisResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/analysis [get]
func (h *AttemptHandler) GetAnalysis(c *gin.Context) {
	attemptID := h.uuidParam(c, "id")
	if attemptID == "" {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	analysis, err := h.attemptService.GetAnalysis(c.Request.Context(), attemptID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// ListMyAttempts lists the caller's attempts, newest first
// @Summary List my attempts
// @Tags attempts
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} services.AttemptListResponse
// @Router /attempts [get]
func (h *AttemptHandler) ListMyAttempts(c *gin.Context) {
	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	attempts, err := h.attemptService.GetByStudent(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}
