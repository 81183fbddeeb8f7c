package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

// newContextWithRoles creates an echo context whose request carries a user
// with the given roles.
func newContextWithRoles(roles []string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &User{ID: "u", Roles: roles}))
	return e.NewContext(req, httptest.NewRecorder())
}

// TestRequireRole_RecordsMatrix checks the role guards the records API
// installs: everyone clinical reads and writes, only registrars delete.
func TestRequireRole_RecordsMatrix(t *testing.T) {
	readWrite := []string{RolePhysician, RoleNurse, RoleRegistrar}
	deleteOnly := []string{RoleRegistrar}

	tests := []struct {
		name      string
		roles     []string
		readWrite bool
		delete    bool
	}{
		{"admin", []string{RoleAdmin}, true, true},
		{"physician", []string{RolePhysician}, true, false},
		{"nurse", []string{RoleNurse}, true, false},
		{"registrar", []string{RoleRegistrar}, true, true},
		{"nurse and registrar", []string{RoleNurse, RoleRegistrar}, true, true},
		{"unknown role", []string{"billing"}, false, false},
		{"no roles", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := func(required []string, want bool) {
				err := RequireRole(required...)(okHandler)(newContextWithRoles(tt.roles))
				if want && err != nil {
					t.Errorf("roles %v should pass %v, got %v", tt.roles, required, err)
				}
				if !want {
					var he *echo.HTTPError
					if !errors.As(err, &he) || he.Code != http.StatusForbidden {
						t.Errorf("roles %v should be forbidden from %v, got %v", tt.roles, required, err)
					}
				}
			}
			check(readWrite, tt.readWrite)
			check(deleteOnly, tt.delete)
		})
	}
}

func TestRequireRole_ForbiddenMessage(t *testing.T) {
	err := RequireRole(RolePhysician, RoleNurse)(okHandler)(newContextWithRoles([]string{"guest"}))
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if he.Message != "required role: physician or nurse" {
		t.Errorf("unexpected message %v", he.Message)
	}
}
