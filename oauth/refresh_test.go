package oauth

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	dbpkg "github.com/UberHobber/UBH-Chonkers-Bot/db"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres-backed test")
	}
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := dbpkg.Migrate(context.Background(), d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		_, _ = d.Exec(`DELETE FROM oauth_tokens`)
		d.Close()
	})
	return d
}

func seedToken(t *testing.T, d *sql.DB, provider, access, refresh string, expiry time.Time) {
	t.Helper()
	if err := dbpkg.UpsertOAuthToken(context.Background(), d, provider, access, refresh, expiry, "scope1"); err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func TestRefresherSkipsFreshToken(t *testing.T) {
	d := testDB(t)
	seedToken(t, d, "test-provider", "access123", "refresh456", time.Now().Add(time.Hour))

	refreshCalled := false
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshCalled = true
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	StartRefresher(ctx, d, "test-provider", 50*time.Millisecond, 30*time.Minute, fn)
	<-ctx.Done()

	if refreshCalled {
		t.Error("refresh called for a token an hour from expiry")
	}
}

func TestRefresherWithinWindow(t *testing.T) {
	d := testDB(t)
	seedToken(t, d, "test-provider", "old-access", "old-refresh", time.Now().Add(5*time.Minute))

	refreshCalled := false
	newExpiry := time.Now().Add(2 * time.Hour)
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		if refreshToken != "old-refresh" {
			t.Errorf("refresh called with token %q", refreshToken)
		}
		refreshCalled = true
		return "new-access", "new-refresh", newExpiry, "scope2", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, d, "test-provider", 50*time.Millisecond, 15*time.Minute, fn)
	time.Sleep(400 * time.Millisecond)
	cancel()

	if !refreshCalled {
		t.Fatal("refresh never ran for a token inside the window")
	}
	var access, refresh, scope string
	if err := d.QueryRow(`SELECT access_token, refresh_token, scope FROM oauth_tokens WHERE provider='test-provider'`).
		Scan(&access, &refresh, &scope); err != nil {
		t.Fatalf("query: %v", err)
	}
	if access != "new-access" || refresh != "new-refresh" || scope != "scope2" {
		t.Errorf("stored token = %q %q %q", access, refresh, scope)
	}
}

func TestRefresherKeepsRowOnError(t *testing.T) {
	d := testDB(t)
	seedToken(t, d, "test-provider", "old-access", "old-refresh", time.Now().Add(5*time.Minute))

	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "", "", time.Time{}, "", errors.New("refresh failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, d, "test-provider", 50*time.Millisecond, 15*time.Minute, fn)
	time.Sleep(300 * time.Millisecond)
	cancel()

	var access string
	if err := d.QueryRow(`SELECT access_token FROM oauth_tokens WHERE provider='test-provider'`).Scan(&access); err != nil {
		t.Fatalf("query: %v", err)
	}
	if access != "old-access" {
		t.Errorf("token updated despite refresh error: %q", access)
	}
}

func TestRefresherPreservesRefreshToken(t *testing.T) {
	d := testDB(t)
	seedToken(t, d, "test-provider", "old-access", "original-refresh", time.Now().Add(5*time.Minute))

	// Empty refresh token and scope in the response keep the stored values.
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "new-access", "", time.Now().Add(2 * time.Hour), "", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, d, "test-provider", 50*time.Millisecond, 15*time.Minute, fn)
	time.Sleep(400 * time.Millisecond)
	cancel()

	var refresh, scope string
	if err := d.QueryRow(`SELECT refresh_token, scope FROM oauth_tokens WHERE provider='test-provider'`).
		Scan(&refresh, &scope); err != nil {
		t.Fatalf("query: %v", err)
	}
	if refresh != "original-refresh" {
		t.Errorf("refresh token = %q, want original-refresh", refresh)
	}
	if scope != "scope1" {
		t.Errorf("scope = %q, want scope1", scope)
	}
}

func TestRefresherCancellation(t *testing.T) {
	d := testDB(t)
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "access", "refresh", time.Now().Add(time.Hour), "scope", nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, d, "test-provider", time.Second, 15*time.Minute, fn)
	cancel()
	time.Sleep(50 * time.Millisecond)
}
