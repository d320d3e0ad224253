package cart

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const storageKey = "cart"

// Storage is the client-side key/value area the cart is persisted to.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Encode serialises a cart for storage as base64 JSON.
func Encode(c Cart) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cart: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode reads a stored cart. Plain JSON written by older clients is accepted.
// The result still has to go through Rehydrate.
func Decode(s string) (Cart, error) {
	var c Cart
	raw := []byte(strings.TrimSpace(s))
	if decoded, err := base64.StdEncoding.DecodeString(string(raw)); err == nil {
		raw = decoded
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

// Store owns one cart: it rehydrates from storage on creation and writes the
// state back after every dispatch.
type Store struct {
	mu      sync.Mutex
	state   Cart
	reducer *Reducer
	storage Storage
	logger  *logrus.Logger
}

func NewStore(logger *logrus.Logger, storage Storage) *Store {
	s := &Store{
		state:   Empty(),
		reducer: NewReducer(logger),
		storage: storage,
		logger:  logger,
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	raw, ok, err := s.storage.Get(storageKey)
	if err != nil {
		s.logger.Printf("cart: error loading from storage: %v", err)
		return
	}
	if !ok || raw == "" {
		return
	}

	saved, err := Decode(raw)
	if err != nil {
		s.logger.Printf("cart: clearing corrupted stored cart: %v", err)
		if err := s.storage.Remove(storageKey); err != nil {
			s.logger.Printf("cart: error removing stored cart: %v", err)
		}
		return
	}
	s.state = s.reducer.Reduce(s.state, Load(Rehydrate(saved)))
}

func (s *Store) Dispatch(action Action) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = s.reducer.Reduce(s.state, action)

	encoded, err := Encode(s.state)
	if err != nil {
		s.logger.Printf("cart: error encoding cart: %v", err)
		return s.state
	}
	if err := s.storage.Set(storageKey, encoded); err != nil {
		s.logger.Printf("cart: error saving cart: %v", err)
	}
	return s.state
}

func (s *Store) State() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
