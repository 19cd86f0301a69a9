package catalog

import (
	"context"
	"testing"
)

func TestPeopleSetCreditsReplacesPrior(t *testing.T) {
	cat, _ := newTestCatalog(t)
	seedSourceAndLibrary(t, cat)
	mediaRepo := NewMediaRepository(cat)
	peopleRepo := NewPeopleRepository(cat)
	ctx := context.Background()

	if _, _, err := mediaRepo.UpsertBatch(ctx, "lib-1", []MediaItem{
		{ID: "m1", LibraryID: "lib-1", SourceID: "src", MediaType: MediaMovie, Title: "Arrival"},
	}); err != nil {
		t.Fatalf("seed media: %v", err)
	}

	if err := peopleRepo.UpsertPerson(ctx, Person{ID: "p1", Name: "Amy Adams"}); err != nil {
		t.Fatalf("UpsertPerson: %v", err)
	}
	if err := peopleRepo.UpsertPerson(ctx, Person{ID: "p2", Name: "Denis Villeneuve"}); err != nil {
		t.Fatalf("UpsertPerson: %v", err)
	}

	if err := peopleRepo.SetCredits(ctx, "m1", []MediaPeople{
		{MediaItemID: "m1", PersonID: "p1", PersonType: PersonActor},
		{MediaItemID: "m1", PersonID: "p2", PersonType: PersonDirector},
	}); err != nil {
		t.Fatalf("SetCredits: %v", err)
	}

	credits, err := peopleRepo.FindCredits(ctx, "m1")
	if err != nil {
		t.Fatalf("FindCredits: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("expected 2 credits, got %d", len(credits))
	}

	if err := peopleRepo.SetCredits(ctx, "m1", []MediaPeople{
		{MediaItemID: "m1", PersonID: "p1", PersonType: PersonActor},
	}); err != nil {
		t.Fatalf("SetCredits (replace): %v", err)
	}
	credits, err = peopleRepo.FindCredits(ctx, "m1")
	if err != nil {
		t.Fatalf("FindCredits: %v", err)
	}
	if len(credits) != 1 {
		t.Fatalf("expected replacement to leave exactly 1 credit, got %d", len(credits))
	}
}

func TestHomeSectionReplace(t *testing.T) {
	cat, _ := newTestCatalog(t)
	seedSourceAndLibrary(t, cat)
	mediaRepo := NewMediaRepository(cat)
	sectionRepo := NewHomeSectionRepository(cat)
	ctx := context.Background()

	if _, _, err := mediaRepo.UpsertBatch(ctx, "lib-1", []MediaItem{
		{ID: "m1", LibraryID: "lib-1", SourceID: "src", MediaType: MediaMovie, Title: "Arrival"},
		{ID: "m2", LibraryID: "lib-1", SourceID: "src", MediaType: MediaMovie, Title: "Sicario"},
	}); err != nil {
		t.Fatalf("seed media: %v", err)
	}

	section := HomeSection{ID: "continue-watching", SourceID: "src", Title: "Continue Watching"}
	if err := sectionRepo.Replace(ctx, section, []string{"m2", "m1"}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	items, err := sectionRepo.FindItems(ctx, "continue-watching")
	if err != nil {
		t.Fatalf("FindItems: %v", err)
	}
	if len(items) != 2 || items[0] != "m2" || items[1] != "m1" {
		t.Fatalf("unexpected order: %v", items)
	}

	if err := sectionRepo.Replace(ctx, section, []string{"m1"}); err != nil {
		t.Fatalf("Replace (second): %v", err)
	}
	items, err = sectionRepo.FindItems(ctx, "continue-watching")
	if err != nil {
		t.Fatalf("FindItems: %v", err)
	}
	if len(items) != 1 || items[0] != "m1" {
		t.Fatalf("expected replace to drop stale items, got %v", items)
	}
}

func TestSyncStatusLifecycle(t *testing.T) {
	cat, _ := newTestCatalog(t)
	seedSourceAndLibrary(t, cat)
	repo := NewSyncStatusRepository(cat)
	ctx := context.Background()

	if err := repo.Start(ctx, "src", SyncFull); err != nil {
		t.Fatalf("Start: %v", err)
	}
	total := 10
	if err := repo.Progress(ctx, "src", SyncFull, 5, &total); err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if err := repo.Complete(ctx, "src", SyncFull, 10); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := repo.Find(ctx, "src", SyncFull)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Status != RunCompleted || got.ItemsSynced != 10 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestCacheRecordFindInvalidate(t *testing.T) {
	cat, _ := newTestCatalog(t)
	repo := NewCacheRepository(cat)
	ctx := context.Background()

	if err := repo.Record(ctx, CacheEntry{SourceID: "src", MediaID: "m1", Quality: "1080p", FilePath: "/cache/m1.mp4", SizeBytes: 1024}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := repo.Find(ctx, "src", "m1", "1080p")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.FilePath != "/cache/m1.mp4" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	total, err := repo.TotalSize(ctx)
	if err != nil {
		t.Fatalf("TotalSize: %v", err)
	}
	if total != 1024 {
		t.Fatalf("expected total size 1024, got %d", total)
	}

	if err := repo.Invalidate(ctx, "src", "m1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := repo.Find(ctx, "src", "m1", "1080p"); !isNotFound(err) {
		t.Fatalf("expected NotFoundError after invalidate, got %v", err)
	}
}

func TestAuthProviderUpsertAndFind(t *testing.T) {
	cat, _ := newTestCatalog(t)
	repo := NewAuthProviderRepository(cat)
	ctx := context.Background()

	a := AuthProvider{ID: "auth-1", ProviderKind: "plex-account", Username: "alex", EncryptedToken: "ct:abc"}
	if err := repo.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.FindByID(ctx, "auth-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Username != "alex" || got.EncryptedToken != "ct:abc" {
		t.Fatalf("unexpected provider: %+v", got)
	}
}
