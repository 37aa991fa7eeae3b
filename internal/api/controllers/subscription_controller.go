package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"newsletter/internal/models/db_models"
	"newsletter/internal/models/request_models"
	"newsletter/internal/services"
	"newsletter/pkg/utils"
)

type SubscriptionController struct {
	subscriptionService services.SubscriptionServiceInterface
}

func NewSubscriptionController(subscriptionService services.SubscriptionServiceInterface) *SubscriptionController {
	return &SubscriptionController{
		subscriptionService: subscriptionService,
	}
}

// tokenHeader pulls the lifecycle token out of the x-token header. Every
// route except subscribe requires it.
func tokenHeader(c *gin.Context) (string, bool) {
	token := c.GetHeader("x-token")
	if token == "" {
		utils.RespondError(c, http.StatusBadRequest, "Missing token")
		return "", false
	}
	return token, true
}

// Subscribe godoc
// @Summary Subscribe an email address
// @Description Create a subscriber and send a verification email
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param request body request_models.SubscribeRequest true "Subscribe payload"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /subscribe [post]
func (s *SubscriptionController) Subscribe(c *gin.Context) {
	var req request_models.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "A valid email is required")
		return
	}

	message, err := s.subscriptionService.Subscribe(c.Request.Context(), req.Email)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, message)
}

// VerifyEmail godoc
// @Summary Verify a subscriber's email
// @Description Consume an email verification token and send the welcome email
// @Tags Subscriptions
// @Produce json
// @Param x-token header string true "Verification token"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /verify-email [put]
func (s *SubscriptionController) VerifyEmail(c *gin.Context) {
	token, ok := tokenHeader(c)
	if !ok {
		return
	}

	message, err := s.subscriptionService.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, message)
}

// CheckAccountCompletion godoc
// @Summary Check an account completion token
// @Description Report whether the completion token is still usable, without consuming it
// @Tags Subscriptions
// @Produce json
// @Param x-token header string true "Completion token"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /complete-account [get]
func (s *SubscriptionController) CheckAccountCompletion(c *gin.Context) {
	token, ok := tokenHeader(c)
	if !ok {
		return
	}

	result, err := s.subscriptionService.CheckAccountToken(c.Request.Context(), token)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, result, result.Message)
}

// CompleteAccount godoc
// @Summary Save the subscriber's name
// @Description Consume an account completion token and store the given names
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param x-token header string true "Completion token"
// @Param request body request_models.CompleteAccountRequest true "Name payload"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /complete-account [post]
func (s *SubscriptionController) CompleteAccount(c *gin.Context) {
	token, ok := tokenHeader(c)
	if !ok {
		return
	}

	var req request_models.CompleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "First name is required")
		return
	}

	message, err := s.subscriptionService.CompleteAccount(c.Request.Context(), token, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, message)
}

// GetPreferences godoc
// @Summary Read a subscriber's email preferences
// @Tags Subscriptions
// @Produce json
// @Param x-token header string true "Preferences token"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /manage-preferences [get]
func (s *SubscriptionController) GetPreferences(c *gin.Context) {
	token, ok := tokenHeader(c)
	if !ok {
		return
	}

	preferences, err := s.subscriptionService.GetPreferences(c.Request.Context(), token)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, gin.H{"preferences": preferences}, "Preferences retrieved successfully.")
}

// UpdatePreferences godoc
// @Summary Update a subscriber's email preferences
// @Description Store the given preferences; turning both off unsubscribes
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param x-token header string true "Preferences token"
// @Param request body request_models.PreferencesRequest true "Preferences payload"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /manage-preferences [put]
func (s *SubscriptionController) UpdatePreferences(c *gin.Context) {
	token, ok := tokenHeader(c)
	if !ok {
		return
	}

	var req request_models.PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}
	if req.Updates == nil || req.Promotions == nil {
		utils.RespondError(c, http.StatusBadRequest, "Both updates and promotions are required")
		return
	}

	preferences := db_models.Preferences{
		Updates:    *req.Updates,
		Promotions: *req.Promotions,
	}

	message, err := s.subscriptionService.UpdatePreferences(c.Request.Context(), token, preferences)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, message)
}

// RegenerateToken godoc
// @Summary Replace an expired link token
// @Description Rotate the token named by x-request-origin and email a fresh link
// @Tags Subscriptions
// @Produce json
// @Param x-token header string true "Expired token"
// @Param x-request-origin header string true "Originating page (verify-email or complete-account)"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /regenerate-token [put]
func (s *SubscriptionController) RegenerateToken(c *gin.Context) {
	token, ok := tokenHeader(c)
	if !ok {
		return
	}

	origin := c.GetHeader("x-request-origin")
	if origin == "" {
		utils.RespondError(c, http.StatusBadRequest, "Missing request origin")
		return
	}

	message, err := s.subscriptionService.RegenerateToken(c.Request.Context(), token, origin)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, message)
}
