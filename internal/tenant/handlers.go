package tenant

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kaledsoft/platform/internal/idgen"
	"github.com/kaledsoft/platform/internal/logging"
	"github.com/kaledsoft/platform/internal/validation"
)

// CustomerCreator registers a tenant with the billing provider.
// Implemented by internal/billing; nil disables billing integration.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
}

// Handler provides the platform-admin tenant provisioning endpoints.
type Handler struct {
	store   Store
	billing CustomerCreator
}

// NewHandler creates a new tenant handler.
func NewHandler(store Store, billing CustomerCreator) *Handler {
	return &Handler{store: store, billing: billing}
}

// RegisterRoutes mounts the provisioning API. The caller wraps the group with
// the platform-role authorization middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.CreateTenant)
	r.GET("/tenants", h.ListTenants)
	r.GET("/tenants/:id", h.GetTenant)
	r.POST("/tenants/:id/suspend", h.SuspendTenant)
	r.POST("/tenants/:id/reactivate", h.ReactivateTenant)
}

// CreateTenant handles POST /tenants.
func (h *Handler) CreateTenant(c *gin.Context) {
	var req struct {
		Name         string `json:"name" binding:"required"`
		Slug         string `json:"slug" binding:"required"`
		Plan         Plan   `json:"plan"`
		BillingEmail string `json:"billingEmail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": "name and slug required"})
		return
	}

	// Provisioning normalizes to lowercase; resolution later does not.
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if err := ValidateSlug(req.Slug); err != nil {
		code := "invalid_slug"
		if err == ErrSlugReserved {
			code = "slug_reserved"
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   code,
			"message": "slug must be 3-63 lowercase alphanumeric/hyphens and not a reserved word",
		})
		return
	}

	if req.Plan == "" {
		req.Plan = PlanFree
	}
	if !ValidPlan(req.Plan) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_plan", "message": "unknown plan"})
		return
	}

	ctx := c.Request.Context()
	now := time.Now()
	t := &Tenant{
		ID:        idgen.WithPrefix("ten_"),
		Name:      validation.SanitizeString(req.Name, 200),
		Slug:      req.Slug,
		Plan:      req.Plan,
		Status:    StatusActive,
		Settings:  DefaultSettingsForPlan(req.Plan),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if h.billing != nil && req.BillingEmail != "" {
		customerID, err := h.billing.CreateCustomer(ctx, t.Name, req.BillingEmail)
		if err != nil {
			// Billing failures don't block provisioning; the customer can be
			// attached later from the billing console.
			logging.L(ctx).Warn("stripe customer creation failed", "slug", t.Slug, "error", err)
		} else {
			t.StripeCustomerID = customerID
		}
	}

	if err := h.store.Create(ctx, t); err != nil {
		if err == ErrSlugTaken {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "slug_taken", "message": "slug already in use"})
			return
		}
		logging.L(ctx).Error("tenant creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "failed to create tenant"})
		return
	}

	logging.L(ctx).Info("tenant provisioned", "tenant_id", t.ID, "slug", t.Slug, "plan", t.Plan)
	c.JSON(http.StatusCreated, gin.H{"success": true, "tenant": t})
}

// ListTenants handles GET /tenants.
func (h *Handler) ListTenants(c *gin.Context) {
	tenants, err := h.store.List(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "failed to list tenants"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tenants": tenants, "count": len(tenants)})
}

// GetTenant handles GET /tenants/:id.
func (h *Handler) GetTenant(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrTenantNotFound {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "failed to load tenant"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tenant": t})
}

// SuspendTenant handles POST /tenants/:id/suspend.
func (h *Handler) SuspendTenant(c *gin.Context) {
	h.setStatus(c, StatusSuspended)
}

// ReactivateTenant handles POST /tenants/:id/reactivate.
func (h *Handler) ReactivateTenant(c *gin.Context) {
	h.setStatus(c, StatusActive)
}

func (h *Handler) setStatus(c *gin.Context, status Status) {
	ctx := c.Request.Context()
	t, err := h.store.Get(ctx, c.Param("id"))
	if err != nil {
		if err == ErrTenantNotFound {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "failed to load tenant"})
		return
	}

	t.Status = status
	t.UpdatedAt = time.Now()
	if err := h.store.Update(ctx, t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error", "message": "failed to update tenant"})
		return
	}

	logging.L(ctx).Info("tenant status changed", "tenant_id", t.ID, "status", status)
	c.JSON(http.StatusOK, gin.H{"success": true, "tenant": t})
}
