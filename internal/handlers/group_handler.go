package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prepline/attempt-service/internal/services"
	"github.com/prepline/attempt-service/internal/utils"
	"github.com/prepline/attempt-service/internal/validator"
)

type GroupHandler struct {
	BaseHandler
	groupService       services.GroupService
	leaderboardService services.LeaderboardService
	validator          *validator.Validator
}

func NewGroupHandler(
	groupService services.GroupService,
	leaderboardService services.LeaderboardService,
	validator *validator.Validator,
	logger utils.Logger,
) *GroupHandler {
	return &GroupHandler{
		BaseHandler:        NewBaseHandler(logger),
		groupService:       groupService,
		leaderboardService: leaderboardService,
		validator:          validator,
	}
}

// CreateGroup creates a study group owned by the caller
// @Summary Create group
// @Tags groups
// @Accept json
// @Produce json
// @Param group body services.CreateGroupRequest true "Group data"
// @Success 201 {object} services.GroupResponse
// @Failure 400 {object} ErrorResponse
// @Router /groups [post]
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	h.LogRequest(c, "Creating group")

	var req services.CreateGroupRequest
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

	group, err := h.groupService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, group)
}

// GetGroup retrieves a group the caller belongs to
// @Summary Get group
// @Tags groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} services.GroupResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /groups/{id} [get]
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID := h.uuidParam(c, "id")
	if groupID == "" {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	group, err := h.groupService.Get(c.Request.Context(), groupID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, group)
}

// ListMyGroups lists groups the caller is a member of
// @Summary List my groups
// @Tags groups
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} services.GroupListResponse
// @Router /groups [get]
func (h *GroupHandler) ListMyGroups(c *gin.Context) {
	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	groups, err := h.groupService.ListMine(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, groups)
}

// ListMembers lists the members of a group
// @Summary List group members
// @Tags groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {array} services.GroupMemberResponse
// @Failure 403 {object} ErrorResponse
// @Router /groups/{id}/members [get]
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID := h.uuidParam(c, "id")
	if groupID == "" {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	members, err := h.groupService.ListMembers(c.Request.Context(), groupID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, members)
}

// CreateInvite mints an invite code for a group
// @Summary Create invite
// @Description Mints an invite code; owners and mods only
// @Tags groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param invite body services.CreateInviteRequest true "Invite options"
// @Success 201 {object} services.InviteResponse
// @Failure 403 {object} ErrorResponse
// @Router /groups/{id}/invites [post]
func (h *GroupHandler) CreateInvite(c *gin.Context) {
	groupID := h.uuidParam(c, "id")
	if groupID == "" {
		return
	}

	var req services.CreateInviteRequest
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

	invite, err := h.groupService.CreateInvite(c.Request.Context(), groupID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invite)
}

// JoinGroup joins a group by invite code
// @Summary Join group
// @Tags groups
// @Accept json
// @Produce json
// @Param join body services.JoinGroupRequest true "Invite code"
// @Success 200 {object} services.GroupResponse
// @Failure 400 {object} ErrorResponse
// @Router /groups/join [post]
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	h.LogRequest(c, "Joining group by code")

	var req services.JoinGroupRequest
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

	group, err := h.groupService.JoinByCode(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, group)
}

// AssignTest makes a test visible to a group
// @Summary Assign test to group
// @Description Assigns a published test; owners and mods only
// @Tags groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param assignment body services.AssignTestRequest true "Test to assign"
// @Success 201 {object} services.AssignmentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /groups/{id}/tests [post]
func (h *GroupHandler) AssignTest(c *gin.Context) {
	groupID := h.uuidParam(c, "id")
	if groupID == "" {
		return
	}

	var req services.AssignTestRequest
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

	assignment, err := h.groupService.AssignTest(c.Request.Context(), groupID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, assignment)
}

// ListAssignments lists tests assigned to a group
// @Summary List group test assignments
// @Tags groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {array} services.AssignmentResponse
// @Failure 403 {object} ErrorResponse
// @Router /groups/{id}/tests [get]
func (h *GroupHandler) ListAssignments(c *gin.Context) {
	groupID := h.uuidParam(c, "id")
	if groupID == "" {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	assignments, err := h.groupService.ListAssignments(c.Request.Context(), groupID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assignments)
}

// GetLeaderboard returns the ranked standings for a test within a group
// @Summary Get group leaderboard
// @Description Ranked submitted attempts; score desc, earlier submit breaks ties
// @Tags groups
// @Produce json
// @Param id path string true "Group ID"
// @Param test_id path string true "Test ID"
// @Success 200 {object} services.LeaderboardResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /groups/{id}/tests/{test_id}/leaderboard [get]
func (h *GroupHandler) GetLeaderboard(c *gin.Context) {
	groupID := h.uuidParam(c, "id")
	if groupID == "" {
		return
	}
	testID := h.uuidParam(c, "test_id")
	if testID == "" {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	leaderboard, err := h.leaderboardService.GetLeaderboard(c.Request.Context(), groupID, testID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, leaderboard)
}

// ExportLeaderboard downloads the leaderboard as an XLSX workbook
// @Summary Export group leaderboard
// @Description Streams an XLSX export; owners and mods only
// @Tags groups
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Group ID"
// @Param test_id path string true "Test ID"
// @Success 200 {file} binary
// @Failure 403 {object} ErrorResponse
// @Router /groups/{id}/tests/{test_id}/leaderboard/export [get]
func (h *GroupHandler) ExportLeaderboard(c *gin.Context) {
	groupID := h.uuidParam(c, "id")
	if groupID == "" {
		return
	}
	testID := h.uuidParam(c, "test_id")
	if testID == "" {
		return
	}

	userID := h.currentUserID(c)
	if userID == "" {
		return
	}

	h.LogRequest(c, "Exporting leaderboard", "group_id", groupID, "test_id", testID)

	data, filename, err := h.leaderboardService.ExportLeaderboard(c.Request.Context(), groupID, testID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
