package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenant-service/internal/apperr"
	"tenant-service/internal/model"
	"tenant-service/internal/tenant"
	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"
)

// TenantHandler serves the lifecycle management surface consumed by the
// external administrative caller.
type TenantHandler struct {
	store   *tenant.Store
	jwtUtil *jwtutil.JWTUtil
}

// NewTenantHandler creates the lifecycle handler.
func NewTenantHandler(store *tenant.Store, jwtUtil *jwtutil.JWTUtil) *TenantHandler {
	return &TenantHandler{store: store, jwtUtil: jwtUtil}
}

// CreateTenant handles tenant provisioning
func (h *TenantHandler) CreateTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("create")

	var req struct {
		Name              string `json:"name"`
		Slug              string `json:"slug"`
		Plan              string `json:"plan,omitempty"`
		IsolationStrategy string `json:"isolation_strategy,omitempty"`
		StorageDSN        string `json:"storage_dsn,omitempty"`
		TrialDays         int    `json:"trial_days,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" || req.Slug == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and slug are required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	t, err := h.store.Create(c.Request().Context(), tenant.CreateParams{
		Name:              req.Name,
		Slug:              req.Slug,
		Plan:              req.Plan,
		IsolationStrategy: model.IsolationStrategy(req.IsolationStrategy),
		StorageDSN:        req.StorageDSN,
		TrialDays:         req.TrialDays,
		CreatedBy:         callerID(c),
	})
	if err != nil {
		return h.fail(c, "tenant creation failed", err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Tenant created successfully",
		"tenant":  t,
	})
}

// GetTenant retrieves tenant details
func (h *TenantHandler) GetTenant(c echo.Context) error {
	prometheus.RecordTenantOperation("access")
	defer prometheus.TrackDBOperation("query")(time.Now())

	t, err := h.store.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "tenant lookup failed", err)
	}

	return c.JSON(http.StatusOK, t)
}

// UpdateConfig applies a partial configuration update
func (h *TenantHandler) UpdateConfig(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("update")

	var req struct {
		Name                *string  `json:"name,omitempty"`
		IPAllowList         []string `json:"ip_allow_list,omitempty"`
		AllowedEmailDomains []string `json:"allowed_email_domains,omitempty"`
		SessionTimeout      *int     `json:"session_timeout_minutes,omitempty"`
		RequireMFA          *bool    `json:"require_mfa,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse config update", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	t, err := h.store.UpdateConfig(c.Request().Context(), c.Param("id"), tenant.ConfigUpdate{
		Name:                req.Name,
		IPAllowList:         req.IPAllowList,
		AllowedEmailDomains: req.AllowedEmailDomains,
		SessionTimeout:      req.SessionTimeout,
		RequireMFA:          req.RequireMFA,
		UpdatedBy:           callerID(c),
	})
	if err != nil {
		return h.fail(c, "config update failed", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Tenant configuration updated",
		"tenant":  t,
	})
}

// ChangePlan moves the tenant to a new subscription plan
func (h *TenantHandler) ChangePlan(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("change_plan")

	var req struct {
		Plan string `json:"plan"`
	}

	if err := c.Bind(&req); err != nil || req.Plan == "" {
		log.Error("Invalid plan change request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "plan is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	t, err := h.store.ChangePlan(c.Request().Context(), c.Param("id"), req.Plan, callerID(c))
	if err != nil {
		return h.fail(c, "plan change failed", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Subscription plan changed",
		"tenant":  t,
	})
}

// RecordUsage merges a usage delta and reports quota violations
func (h *TenantHandler) RecordUsage(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("record_usage")

	var delta model.UsageDelta
	if err := c.Bind(&delta); err != nil {
		log.Error("Failed to parse usage delta", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	violations, err := h.store.RecordUsage(c.Request().Context(), c.Param("id"), delta)
	if err != nil {
		return h.fail(c, "usage recording failed", err)
	}

	for _, v := range violations {
		prometheus.RecordQuotaViolation(v.Metric)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":    "Usage recorded",
		"violations": violations,
	})
}

// AddDomain registers a custom domain for the tenant
func (h *TenantHandler) AddDomain(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("add_domain")

	var req struct {
		Domain  string `json:"domain"`
		Primary bool   `json:"primary,omitempty"`
	}

	if err := c.Bind(&req); err != nil || req.Domain == "" {
		log.Error("Invalid domain request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "domain is required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	d, err := h.store.AddDomain(c.Request().Context(), c.Param("id"), req.Domain, req.Primary)
	if err != nil {
		return h.fail(c, "domain registration failed", err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":            "Domain registered, pending verification",
		"domain":             d,
		"verification_token": d.VerificationToken,
	})
}

// VerifyDomain marks a domain verified against its token
func (h *TenantHandler) VerifyDomain(c echo.Context) error {
	prometheus.RecordTenantOperation("verify_domain")

	var req struct {
		Domain string `json:"domain"`
		Token  string `json:"token"`
	}

	if err := c.Bind(&req); err != nil || req.Domain == "" || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "domain and token are required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := h.store.VerifyDomain(c.Request().Context(), c.Param("id"), req.Domain, req.Token); err != nil {
		return h.fail(c, "domain verification failed", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Domain verified"})
}

// SuspendTenant suspends the tenant, a reversible status transition
func (h *TenantHandler) SuspendTenant(c echo.Context) error {
	prometheus.RecordTenantOperation("suspend")
	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := h.store.Suspend(c.Request().Context(), c.Param("id"), callerID(c)); err != nil {
		return h.fail(c, "suspension failed", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Tenant suspended"})
}

// ActivateTenant returns a suspended tenant to service
func (h *TenantHandler) ActivateTenant(c echo.Context) error {
	prometheus.RecordTenantOperation("activate")
	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := h.store.Activate(c.Request().Context(), c.Param("id"), callerID(c)); err != nil {
		return h.fail(c, "activation failed", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Tenant activated"})
}

// GenerateAPIKey issues a scoped, tenant-bound API key
func (h *TenantHandler) GenerateAPIKey(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("generate_api_key")

	var req struct {
		Scopes []string `json:"scopes"`
	}

	if err := c.Bind(&req); err != nil || len(req.Scopes) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scopes are required"})
	}

	tenantID := c.Param("id")
	// The tenant must exist before a key is bound to it
	if _, err := h.store.GetByID(c.Request().Context(), tenantID); err != nil {
		return h.fail(c, "tenant lookup failed", err)
	}

	keyID := uuid.New().String()
	key, err := h.jwtUtil.GenerateAPIKey(tenantID, keyID, req.Scopes)
	if err != nil {
		log.Error("Failed to generate API key", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "key generation failed"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"key_id":  keyID,
		"api_key": key,
		"scopes":  req.Scopes,
	})
}

// fail renders store errors: typed isolation errors keep their code and
// status, a directory miss is 404, anything else is an opaque 500.
func (h *TenantHandler) fail(c echo.Context, message string, err error) error {
	log := logger.FromEcho(c)

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return c.JSON(appErr.Status, appErr.Body())
	}
	if errors.Is(err, tenant.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	log.Error(message, zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": message})
}

func callerID(c echo.Context) string {
	if claims, ok := c.Get("claims").(*jwtutil.UserClaims); ok {
		return claims.Email
	}
	return "system"
}
