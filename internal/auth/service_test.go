package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LabGraphTeam/labgraph/internal/store"
	"go.uber.org/zap"
)

const adminPassword = "change1me"

// testEnv sets up an in-memory database with auth migrations and returns
// the UserStore, TokenService and Service for testing.
func testEnv(t *testing.T) (*UserStore, *TokenService, *Service) {
	t.Helper()

	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	userStore, err := NewUserStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}

	tokens := newTestTokenService()
	return userStore, tokens, NewService(userStore, tokens, zap.NewNop())
}

func setupAdmin(t *testing.T, svc *Service) *User {
	t.Helper()
	admin, err := svc.Setup(context.Background(), "admin", "admin@lab.example", adminPassword)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return admin
}

func TestSetup_CreatesAdmin(t *testing.T) {
	_, _, svc := testEnv(t)
	ctx := context.Background()

	needs, err := svc.NeedsSetup(ctx)
	if err != nil {
		t.Fatalf("NeedsSetup: %v", err)
	}
	if !needs {
		t.Fatal("expected NeedsSetup=true before any users created")
	}

	user := setupAdmin(t, svc)
	if user.Role != RoleAdmin {
		t.Errorf("user.Role = %q, want admin", user.Role)
	}

	needs, err = svc.NeedsSetup(ctx)
	if err != nil {
		t.Fatalf("NeedsSetup after setup: %v", err)
	}
	if needs {
		t.Error("expected NeedsSetup=false after setup")
	}
}

func TestSetup_OnlyOnce(t *testing.T) {
	_, _, svc := testEnv(t)
	setupAdmin(t, svc)

	_, err := svc.Setup(context.Background(), "admin2", "admin2@lab.example", adminPassword)
	if !errors.Is(err, ErrSetupComplete) {
		t.Errorf("second Setup err = %v, want ErrSetupComplete", err)
	}
}

func TestSetup_WeakPassword(t *testing.T) {
	_, _, svc := testEnv(t)
	_, err := svc.Setup(context.Background(), "admin", "admin@lab.example", "short")
	if !errors.Is(err, ErrWeakPassword) {
		t.Errorf("Setup err = %v, want ErrWeakPassword", err)
	}
}

func TestCreateUser(t *testing.T) {
	_, _, svc := testEnv(t)
	ctx := context.Background()
	setupAdmin(t, svc)

	analyst, err := svc.CreateUser(ctx, "maria", "maria@lab.example", "levey1jennings", RoleAnalyst)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if analyst.Role != RoleAnalyst {
		t.Errorf("Role = %q, want analyst", analyst.Role)
	}

	_, err = svc.CreateUser(ctx, "maria", "other@lab.example", "levey1jennings", RoleViewer)
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate username err = %v, want ErrUserExists", err)
	}
	_, err = svc.CreateUser(ctx, "joao", "joao@lab.example", "levey1jennings", Role("operator"))
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("invalid role err = %v, want ErrInvalidRole", err)
	}
}

func TestLogin_Success(t *testing.T) {
	_, _, svc := testEnv(t)
	setupAdmin(t, svc)

	pair, err := svc.Login(context.Background(), "admin", adminPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected non-empty access and refresh tokens")
	}
	if pair.ExpiresIn != int((15 * time.Minute).Seconds()) {
		t.Errorf("ExpiresIn = %d, want 900", pair.ExpiresIn)
	}
}

func TestLogin_Failures(t *testing.T) {
	us, _, svc := testEnv(t)
	ctx := context.Background()
	admin := setupAdmin(t, svc)

	if _, err := svc.Login(ctx, "admin", "wrong1password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody", adminPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user err = %v, want ErrInvalidCredentials", err)
	}

	admin.Disabled = true
	if err := us.UpdateUser(ctx, admin); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if _, err := svc.Login(ctx, "admin", adminPassword); !errors.Is(err, ErrUserDisabled) {
		t.Errorf("disabled user err = %v, want ErrUserDisabled", err)
	}
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	_, _, svc := testEnv(t)
	ctx := context.Background()
	setupAdmin(t, svc)

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := range maxFailedLogins {
		if _, err := svc.Login(ctx, "admin", "wrong1password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d err = %v, want ErrInvalidCredentials", i+1, err)
		}
	}

	if _, err := svc.Login(ctx, "admin", adminPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("Login during lockout err = %v, want ErrAccountLocked", err)
	}

	now = now.Add(lockoutDuration + time.Second)
	if _, err := svc.Login(ctx, "admin", adminPassword); err != nil {
		t.Fatalf("Login after lockout expired: %v", err)
	}

	u, err := svc.store.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.FailedLoginAttempts != 0 || u.LockedUntil != nil {
		t.Errorf("lockout state not cleared: attempts=%d locked_until=%v", u.FailedLoginAttempts, u.LockedUntil)
	}
}

func TestRefresh_Rotation(t *testing.T) {
	_, _, svc := testEnv(t)
	ctx := context.Background()
	setupAdmin(t, svc)

	pair1, err := svc.Login(ctx, "admin", adminPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	pair2, err := svc.Refresh(ctx, pair1.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair2.RefreshToken == pair1.RefreshToken {
		t.Error("refresh should issue a new refresh token")
	}

	if _, err := svc.Refresh(ctx, pair1.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("reuse of old refresh token: err = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.Refresh(ctx, pair2.RefreshToken); err != nil {
		t.Fatalf("Refresh with new token: %v", err)
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	_, _, svc := testEnv(t)
	if _, err := svc.Refresh(context.Background(), "totally-fake-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Refresh err = %v, want ErrInvalidToken", err)
	}
}

func TestLogout(t *testing.T) {
	_, _, svc := testEnv(t)
	ctx := context.Background()
	setupAdmin(t, svc)
	pair, err := svc.Login(ctx, "admin", adminPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Refresh after logout: err = %v, want ErrInvalidToken", err)
	}
	if err := svc.Logout(ctx, "nonexistent-token"); err != nil {
		t.Errorf("Logout of nonexistent token: %v", err)
	}

	n, err := svc.CleanExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("CleanExpiredTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanExpiredTokens removed %d, want 1 revoked token", n)
	}
}

func TestUserCRUD(t *testing.T) {
	_, _, svc := testEnv(t)
	ctx := context.Background()
	setupAdmin(t, svc)

	viewer, err := svc.CreateUser(ctx, "joao", "joao@lab.example", "viewer1pass", RoleViewer)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers len = %d, want 2", len(users))
	}

	updated, err := svc.UpdateUser(ctx, viewer.ID, "joao@new.example", RoleAnalyst, false)
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Email != "joao@new.example" || updated.Role != RoleAnalyst {
		t.Errorf("UpdateUser = %s/%s, want joao@new.example/analyst", updated.Email, updated.Role)
	}

	if err := svc.DeleteUser(ctx, viewer.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := svc.GetUser(ctx, viewer.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser after delete: err = %v, want ErrUserNotFound", err)
	}
	if err := svc.DeleteUser(ctx, "nonexistent-id"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("DeleteUser err = %v, want ErrUserNotFound", err)
	}
}

func TestLastAdminProtected(t *testing.T) {
	_, _, svc := testEnv(t)
	ctx := context.Background()
	admin := setupAdmin(t, svc)

	if _, err := svc.UpdateUser(ctx, admin.ID, "", RoleViewer, false); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("demote last admin err = %v, want ErrLastAdmin", err)
	}
	if _, err := svc.UpdateUser(ctx, admin.ID, "", RoleAdmin, true); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("disable last admin err = %v, want ErrLastAdmin", err)
	}
	if err := svc.DeleteUser(ctx, admin.ID); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("delete last admin err = %v, want ErrLastAdmin", err)
	}

	if _, err := svc.CreateUser(ctx, "second", "second@lab.example", "second1admin", RoleAdmin); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := svc.DeleteUser(ctx, admin.ID); err != nil {
		t.Errorf("delete with another admin present: %v", err)
	}
}
