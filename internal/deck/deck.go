package deck

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"chatgames/internal/domain"
	"chatgames/internal/kv"
)

const deckTTL = time.Hour

var suits = []string{domain.SuitHearts, domain.SuitDiamonds, domain.SuitClubs, domain.SuitSpades}

// Service keeps one persisted deck per room in the keyed store, so a draw
// on any replica continues the same deck. A missing or exhausted deck is
// regenerated transparently, which lets a game run longer than 52 draws.
type Service struct {
	store kv.Store

	mu  sync.Mutex
	rng *rand.Rand
}

func New(store kv.Store) *Service {
	return NewWithRand(store, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates a Service with the given random number generator.
func NewWithRand(store kv.Store, rng *rand.Rand) *Service {
	return &Service{store: store, rng: rng}
}

func key(roomID string) string {
	return "lowcard:deck:" + roomID
}

// Init writes a fresh shuffled deck for the room.
func (s *Service) Init(ctx context.Context, roomID string) error {
	return s.save(ctx, roomID, s.shuffled())
}

// Draw pops the top card and persists the remainder.
func (s *Service) Draw(ctx context.Context, roomID string) (domain.Card, error) {
	cards, err := s.load(ctx, roomID)
	if err != nil {
		return domain.Card{}, err
	}
	if len(cards) == 0 {
		cards = s.shuffled()
	}

	card := cards[len(cards)-1]
	cards = cards[:len(cards)-1]
	if err := s.save(ctx, roomID, cards); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// Delete removes the room's deck.
func (s *Service) Delete(ctx context.Context, roomID string) error {
	return s.store.Del(ctx, key(roomID))
}

// shuffled builds the 52-card deck and Fisher-Yates shuffles it.
func (s *Service) shuffled() []domain.Card {
	cards := make([]domain.Card, 0, 52)
	for _, suit := range suits {
		for value := 2; value <= 14; value++ {
			cards = append(cards, domain.NewCard(value, suit))
		}
	}
	s.mu.Lock()
	s.rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	s.mu.Unlock()
	return cards
}

func (s *Service) load(ctx context.Context, roomID string) ([]domain.Card, error) {
	raw, err := s.store.Get(ctx, key(roomID))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cards []domain.Card
	if err := json.Unmarshal([]byte(raw), &cards); err != nil {
		// corrupt deck data; treat as missing so play can continue
		return nil, nil
	}
	return cards, nil
}

func (s *Service) save(ctx context.Context, roomID string, cards []domain.Card) error {
	raw, err := json.Marshal(cards)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key(roomID), string(raw), deckTTL)
}
