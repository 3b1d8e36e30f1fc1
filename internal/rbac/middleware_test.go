package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradepay-platform/internal/auth"
	"tradepay-platform/internal/review"

	"github.com/gin-gonic/gin"
)

func roleRoute(role string, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", "admin", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})
	return r
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	r := roleRoute(RoleSuperAdmin, RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAnyRole_HiddenRoleDeniedUnlessAllowed(t *testing.T) {
	r := roleRoute(RoleCompliance, RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 403 {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireAnyRole_DisallowedRoleForbidden(t *testing.T) {
	r := roleRoute(RoleUser, RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != 403 {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestCategoryAuthorizer_ScopesAdminsToAssignments(t *testing.T) {
	repo := NewMemoryAssignmentRepo()
	repo.Assign(Assignment{AdminID: "a1", Kind: "giftcard", Category: "amazon-us"})
	repo.MakeSuper("root")

	authz := NewCategoryAuthorizer(repo)

	ok, err := authz.CanReview(context.Background(), "a1", review.KindGiftcard, "amazon-us")
	if err != nil || !ok {
		t.Fatalf("assigned category must be allowed, got ok=%v err=%v", ok, err)
	}

	ok, _ = authz.CanReview(context.Background(), "a1", review.KindAsset, "BTC")
	if ok {
		t.Fatalf("unassigned category must be denied")
	}

	ok, _ = authz.CanReview(context.Background(), "root", review.KindAsset, "BTC")
	if !ok {
		t.Fatalf("superadmin must bypass category scoping")
	}
}
