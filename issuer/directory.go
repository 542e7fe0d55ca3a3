package issuer

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/alovak/cardflow-3ds/internal/auth"
	"github.com/alovak/cardflow-3ds/internal/cardgen"
	"github.com/alovak/cardflow-3ds/internal/models"
	"gopkg.in/yaml.v3"
)

// CardholderDirectory resolves a card number to the cardholder the issuer
// knows for it. Implementations return ErrNotFound for unknown cards.
type CardholderDirectory interface {
	Lookup(cardNumber string) (*models.Cardholder, error)
}

// StaticDirectory is an in-memory directory keyed by normalized PAN.
type StaticDirectory struct {
	mu    sync.RWMutex
	cards map[string]models.Cardholder
}

func NewStaticDirectory(cardholders ...models.Cardholder) *StaticDirectory {
	d := &StaticDirectory{cards: make(map[string]models.Cardholder)}
	for _, ch := range cardholders {
		d.cards[cardgen.NormalizePAN(ch.CardNumber)] = ch
	}
	return d
}

func (d *StaticDirectory) Lookup(cardNumber string) (*models.Cardholder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, ok := d.cards[cardNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return &ch, nil
}

// Add enrolls or replaces a cardholder.
func (d *StaticDirectory) Add(ch models.Cardholder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cards[cardgen.NormalizePAN(ch.CardNumber)] = ch
}

// Cardholders lists the directory ordered by card number.
func (d *StaticDirectory) Cardholders() []models.Cardholder {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Cardholder, 0, len(d.cards))
	for _, ch := range d.cards {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardNumber < out[j].CardNumber })
	return out
}

type directoryFile struct {
	Cardholders []models.Cardholder `yaml:"cardholders"`
}

// LoadDirectoryFile reads a YAML directory as written by the enroll command.
func LoadDirectoryFile(path string) (*StaticDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory file: %w", err)
	}

	var f directoryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing directory file: %w", err)
	}

	for i, ch := range f.Cardholders {
		if !cardgen.Plausible(ch.CardNumber) {
			return nil, fmt.Errorf("cardholder %d: card number is not 13-19 digits", i)
		}
		if ch.PasswordHash == "" {
			return nil, fmt.Errorf("cardholder %d (%s): passwordHash is required", i, cardgen.MaskPAN(ch.CardNumber))
		}
	}
	return NewStaticDirectory(f.Cardholders...), nil
}

// MarshalDirectory renders cardholders in the format LoadDirectoryFile reads.
func MarshalDirectory(cardholders ...models.Cardholder) ([]byte, error) {
	return yaml.Marshal(directoryFile{Cardholders: cardholders})
}

// NewDirectory builds the directory the config asks for: the YAML file when
// set, otherwise only the demo cardholder with a freshly hashed password.
func NewDirectory(config *Config) (*StaticDirectory, error) {
	if config.DirectoryFile != "" {
		return LoadDirectoryFile(config.DirectoryFile)
	}

	demo := config.DemoCardholder
	if demo.PasswordHash == "" {
		hash, err := auth.HashPassword(config.DemoPassword)
		if err != nil {
			return nil, fmt.Errorf("hashing demo password: %w", err)
		}
		demo.PasswordHash = hash
	}
	return NewStaticDirectory(demo), nil
}
