package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastOpts() FallbackOptions {
	return FallbackOptions{MaxRetries: 1, InitialInterval: time.Millisecond}
}

func TestPrimarySuccessSkipsBackup(t *testing.T) {
	backupCalled := false
	got, err := InvokeWithFallback(context.Background(),
		func(context.Context) (string, error) { return "primary", nil },
		func(context.Context) (string, error) { backupCalled = true; return "backup", nil },
		fastOpts(),
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "primary" {
		t.Fatalf("result = %s, want primary", got)
	}
	if backupCalled {
		t.Fatal("backup must not run when primary succeeds")
	}
}

func TestRetriesPrimaryBeforeBackup(t *testing.T) {
	attempts := 0
	got, err := InvokeWithFallback(context.Background(),
		func(context.Context) (int, error) {
			attempts++
			if attempts < 2 {
				return 0, errTest
			}
			return 42, nil
		},
		func(context.Context) (int, error) { return -1, nil },
		fastOpts(),
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
	if attempts != 2 {
		t.Fatalf("primary attempts = %d, want 2", attempts)
	}
}

func TestBackupRunsOnPrimaryExhaustion(t *testing.T) {
	attempts := 0
	got, err := InvokeWithFallback(context.Background(),
		func(context.Context) (string, error) { attempts++; return "", errTest },
		func(context.Context) (string, error) { return "backup", nil },
		fastOpts(),
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "backup" {
		t.Fatalf("result = %s, want backup", got)
	}
	if attempts != 2 { // initial try plus one retry
		t.Fatalf("primary attempts = %d, want 2", attempts)
	}
}

func TestBothFailingReportsBothErrors(t *testing.T) {
	backupErr := errors.New("backup down")
	_, err := InvokeWithFallback(context.Background(),
		func(context.Context) (string, error) { return "", errTest },
		func(context.Context) (string, error) { return "", backupErr },
		fastOpts(),
	)
	if !errors.Is(err, backupErr) {
		t.Fatalf("expected wrapped backup error, got %v", err)
	}
	if !strings.Contains(err.Error(), errTest.Error()) {
		t.Fatalf("error must mention the primary failure, got %v", err)
	}
}

func TestNoBackupReturnsPrimaryError(t *testing.T) {
	_, err := InvokeWithFallback[string](context.Background(),
		func(context.Context) (string, error) { return "", errTest },
		nil,
		fastOpts(),
	)
	if !errors.Is(err, errTest) {
		t.Fatalf("expected primary error, got %v", err)
	}
}

func TestPerAttemptTimeoutApplies(t *testing.T) {
	opts := FallbackOptions{Timeout: 10 * time.Millisecond, InitialInterval: time.Millisecond}
	got, err := InvokeWithFallback(context.Background(),
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		func(context.Context) (string, error) { return "backup", nil },
		opts,
	)
	if err != nil {
		t.Fatalf("expected backup to rescue timed-out primary, got %v", err)
	}
	if got != "backup" {
		t.Fatalf("result = %s, want backup", got)
	}
}
