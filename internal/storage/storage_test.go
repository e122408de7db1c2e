package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eugenenazirov/atlas-packer/internal/packing"
)

func testSheet(name string) Sheet {
	return Sheet{
		Name: name,
		Sprites: []Sprite{
			{ID: "arrow.png", Width: 16, Height: 16},
			{ID: "logo.png", Width: 120, Height: 40},
		},
	}
}

func TestNewMemoryStorageIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	sheets, err := store.ListSheets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sheets) != 0 {
		t.Fatalf("expected no sheets, got %d", len(sheets))
	}
}

func TestPutSheetStampsRevision(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStorage(WithClock(func() time.Time { return now }))

	first, err := store.PutSheet(testSheet("icons"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Revision == "" {
		t.Fatalf("expected revision to be set")
	}
	if !first.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %s, got %s", now, first.UpdatedAt)
	}

	second, err := store.PutSheet(testSheet("icons"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Revision == first.Revision {
		t.Fatalf("expected a new revision on replace")
	}

	got, err := store.GetSheet("icons")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Revision != second.Revision || len(got.Sprites) != 2 {
		t.Fatalf("unexpected stored sheet: %+v", got)
	}
}

func TestGetSheetReturnsDefensiveCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	input := testSheet("icons")
	if _, err := store.PutSheet(input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// mutating the caller's slice must not leak into storage
	input.Sprites[0].Width = 999

	got, err := store.GetSheet("icons")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sprites[0].Width != 16 {
		t.Fatalf("expected stored width 16, got %d", got.Sprites[0].Width)
	}

	got.Sprites[1].Height = 1
	again, err := store.GetSheet("icons")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Sprites[1].Height != 40 {
		t.Fatalf("expected defensive copy, got %+v", again.Sprites[1])
	}
}

func TestListSheetsSortedByName(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := store.PutSheet(testSheet(name)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	sheets, err := store.ListSheets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if sheets[i].Name != name {
			t.Fatalf("expected %s at position %d, got %s", name, i, sheets[i].Name)
		}
	}
}

func TestDeleteSheet(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	if _, err := store.PutSheet(testSheet("icons")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.DeleteSheet("icons"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.GetSheet("icons"); !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound, got %v", err)
	}
	if err := store.DeleteSheet("icons"); !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound on second delete, got %v", err)
	}
}

func TestPutSheetRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	valid := testSheet("icons")
	testCases := []Sheet{
		{Name: "", Sprites: valid.Sprites},
		{Name: "bad name", Sprites: valid.Sprites},
		{Name: "icons", Sprites: nil},
		{Name: "icons", MaxWidth: -1, Sprites: valid.Sprites},
		{Name: "icons", Sprites: []Sprite{{ID: "", Width: 1, Height: 1}}},
		{Name: "icons", Sprites: []Sprite{{ID: "a", Width: 1, Height: 1}, {ID: "a", Width: 2, Height: 2}}},
		{Name: "icons", Sprites: []Sprite{{ID: "a", Width: 0, Height: 1}}},
		{Name: "icons", Sprites: []Sprite{{ID: "a", Width: 1, Height: -3}}},
		{Name: "icons", Sprites: []Sprite{{ID: "a", Width: packing.MaxDimension + 1, Height: 1}}},
	}

	for idx, tc := range testCases {
		tc := tc
		t.Run(fmt.Sprintf("case_%d", idx), func(t *testing.T) {
			store := NewMemoryStorage()
			if _, err := store.PutSheet(tc); !errors.Is(err, ErrInvalidSheet) {
				t.Fatalf("expected ErrInvalidSheet for %+v, got %v", tc, err)
			}
		})
	}
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	store := NewMemoryStorage()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(2)

		go func(offset int) {
			defer wg.Done()
			sheet := testSheet(fmt.Sprintf("sheet-%d", offset%4))
			sheet.MaxWidth = 200 + offset
			if _, err := store.PutSheet(sheet); err != nil {
				t.Errorf("PutSheet failed: %v", err)
			}
		}(i)

		go func() {
			defer wg.Done()
			if _, err := store.ListSheets(); err != nil {
				t.Errorf("ListSheets failed: %v", err)
			}
		}()
	}

	wg.Wait()

	sheets, err := store.ListSheets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sheets) != 4 {
		t.Fatalf("expected 4 sheets, got %d", len(sheets))
	}
}
