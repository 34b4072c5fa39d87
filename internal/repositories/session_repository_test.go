package repositories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"paydesk/internal/models"
)

func TestSessionFileRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSessionFileRepo(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Load(ctx, "abc"); !errors.Is(err, models.ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}

	snap := models.SessionSnapshot{
		Token:   "tok",
		Profile: &models.UserProfile{ID: "1", FullName: "Ann", Role: "agent"},
	}
	if err := repo.Save(ctx, "abc", snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(filepath.Join(repo.Dir, "abc.json"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}

	got, err := repo.Load(ctx, "abc")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Token != "tok" || got.Profile == nil || got.Profile.Role != "agent" {
		t.Errorf("unexpected snapshot %+v", got)
	}

	if err := repo.Delete(ctx, "abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "abc"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := repo.Load(ctx, "abc"); !errors.Is(err, models.ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord after delete, got %v", err)
	}
}

func TestSessionFileRepoRejectsPathKeys(t *testing.T) {
	repo, err := NewSessionFileRepo(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(context.Background(), "../evil", models.SessionSnapshot{}); err == nil {
		t.Fatal("expected invalid key error")
	}
}

func TestSessionRedisRepo(t *testing.T) {
	addr := os.Getenv("PAYDESK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAYDESK_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	repo := NewSessionRedisRepo(client, "paydesk:test:", time.Minute)
	if _, err := repo.Load(ctx, "missing"); !errors.Is(err, models.ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}
	if err := repo.Save(ctx, "k1", models.SessionSnapshot{Token: "t"}); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Load(ctx, "k1")
	if err != nil || got.Token != "t" {
		t.Fatalf("load = %+v, %v", got, err)
	}
	if err := repo.Delete(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
}
