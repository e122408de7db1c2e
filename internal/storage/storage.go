package storage

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eugenenazirov/atlas-packer/internal/packing"
)

const maxSprites = 10_000

var (
	// ErrInvalidSheet indicates the provided sheet violates validation rules.
	ErrInvalidSheet = errors.New("invalid sprite sheet")
	// ErrSheetNotFound is returned when no sheet is registered under a name.
	ErrSheetNotFound = errors.New("sprite sheet not found")
)

var sheetNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Sprite is one image of a sheet, reduced to the size the packer needs.
type Sprite struct {
	ID     string `json:"id" yaml:"id"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// Sheet is a named set of sprites that are packed together into one atlas.
// A MaxWidth of zero lets the packer choose the width.
type Sheet struct {
	Name      string    `json:"name"`
	MaxWidth  int       `json:"maxWidth,omitempty"`
	Sprites   []Sprite  `json:"sprites"`
	Revision  string    `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Storage provides access to the registered sprite sheets.
type Storage interface {
	ListSheets() ([]Sheet, error)
	GetSheet(name string) (Sheet, error)
	PutSheet(sheet Sheet) (Sheet, error)
	DeleteSheet(name string) error
}

// MemoryStorage keeps sheets in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu     sync.RWMutex
	sheets map[string]Sheet
	clock  func() time.Time
}

// Option configures MemoryStorage.
type Option func(*MemoryStorage)

// WithClock overrides the time source used to stamp updates.
func WithClock(clock func() time.Time) Option {
	return func(s *MemoryStorage) {
		s.clock = clock
	}
}

// NewMemoryStorage initialises an empty registry.
func NewMemoryStorage(opts ...Option) *MemoryStorage {
	s := &MemoryStorage{
		sheets: make(map[string]Sheet),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListSheets returns copies of all sheets sorted by name.
func (s *MemoryStorage) ListSheets() ([]Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Sheet, 0, len(s.sheets))
	for _, sheet := range s.sheets {
		out = append(out, cloneSheet(sheet))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetSheet returns a defensive copy of the named sheet.
func (s *MemoryStorage) GetSheet(name string) (Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheet, ok := s.sheets[name]
	if !ok {
		return Sheet{}, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	return cloneSheet(sheet), nil
}

// PutSheet validates and stores the sheet, replacing any sheet with the same
// name. The stored copy gets a fresh revision and update time.
func (s *MemoryStorage) PutSheet(sheet Sheet) (Sheet, error) {
	if err := validateSheet(sheet); err != nil {
		return Sheet{}, err
	}

	stored := cloneSheet(sheet)
	stored.Revision = uuid.NewString()
	stored.UpdatedAt = s.clock()

	s.mu.Lock()
	s.sheets[stored.Name] = stored
	s.mu.Unlock()

	return cloneSheet(stored), nil
}

// DeleteSheet removes the named sheet.
func (s *MemoryStorage) DeleteSheet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sheets[name]; !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	delete(s.sheets, name)
	return nil
}

func cloneSheet(src Sheet) Sheet {
	out := src
	out.Sprites = make([]Sprite, len(src.Sprites))
	copy(out.Sprites, src.Sprites)
	return out
}

func validateSheet(sheet Sheet) error {
	if !sheetNamePattern.MatchString(sheet.Name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidSheet, sheet.Name, sheetNamePattern)
	}
	if sheet.MaxWidth < 0 {
		return fmt.Errorf("%w: max width must not be negative", ErrInvalidSheet)
	}
	if len(sheet.Sprites) == 0 || len(sheet.Sprites) > maxSprites {
		return fmt.Errorf("%w: must contain between 1 and %d sprites", ErrInvalidSheet, maxSprites)
	}

	seen := make(map[string]struct{}, len(sheet.Sprites))
	for _, sprite := range sheet.Sprites {
		if sprite.ID == "" {
			return fmt.Errorf("%w: sprite id must not be empty", ErrInvalidSheet)
		}
		if _, dup := seen[sprite.ID]; dup {
			return fmt.Errorf("%w: duplicate sprite id %q", ErrInvalidSheet, sprite.ID)
		}
		seen[sprite.ID] = struct{}{}
		if _, err := packing.NewBox(sprite.Width, sprite.Height); err != nil {
			return fmt.Errorf("%w: sprite %q: %v", ErrInvalidSheet, sprite.ID, err)
		}
	}
	return nil
}
