// Package profile persists the two participant profiles of a companion
// installation: the human user and the agent persona. Each is a
// singleton document under its own storage key.
package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/memorymate/companion/internal/apperrors"
	"github.com/memorymate/companion/internal/image"
	"github.com/memorymate/companion/internal/storage"
	"github.com/memorymate/companion/pkg/logger"
)

// Gender of a profile subject.
type Gender string

const (
	Male      Gender = "MALE"
	Female    Gender = "FEMALE"
	NonBinary Gender = "NON_BINARY"
)

func (g Gender) valid() bool {
	switch g {
	case Male, Female, NonBinary:
		return true
	}
	return false
}

// Kind selects which of the two profiles an operation addresses.
type Kind string

const (
	// User is the human owner of the device.
	User Kind = "user"
	// Agent is the companion persona the user converses with.
	Agent Kind = "agent"
)

func (k Kind) storageKey() (string, error) {
	switch k {
	case User:
		return "userProfile.json", nil
	case Agent:
		return "botProfile.json", nil
	}
	return "", apperrors.NewInvalidArgument("unknown profile kind: %s", k)
}

// Data is one participant profile. Image is absent until set explicitly
// (user) or derived on creation (agent).
type Data struct {
	Name   string     `json:"name"`
	Age    int        `json:"age"`
	Gender Gender     `json:"gender"`
	Image  *image.Ref `json:"image,omitempty"`
}

func (d Data) validate() error {
	if d.Age < 0 {
		return apperrors.NewInvalidArgument("given profile data has an invalid age: %d", d.Age)
	}
	if !d.Gender.valid() {
		return apperrors.NewInvalidArgument("given profile data has an invalid gender: %q", d.Gender)
	}
	return nil
}

// Store reads and writes the two profile documents.
type Store struct {
	store storage.Store
	log   logger.Logger
}

// NewStore wires a profile store over the given backend.
func NewStore(store storage.Store, log logger.Logger) *Store {
	return &Store{store: store, log: log}
}

// Has reports whether the profile document exists.
func (s *Store) Has(ctx context.Context, kind Kind) (bool, error) {
	key, err := kind.storageKey()
	if err != nil {
		return false, err
	}
	return s.store.Has(ctx, key)
}

// Create writes the profile for the first time. Agent profiles without
// an explicit image get a deterministic avatar derived from name, age
// bucket and gender.
func (s *Store) Create(ctx context.Context, kind Kind, data Data) (Data, error) {
	if err := data.validate(); err != nil {
		return Data{}, err
	}

	if kind == Agent && data.Image == nil {
		avatar := avatarFor(data.Name, data.Age, data.Gender)
		data.Image = &avatar
	}

	if err := s.persist(ctx, kind, data); err != nil {
		return Data{}, err
	}

	s.log.Info("Created profile",
		logger.StringField("kind", string(kind)),
		logger.StringField("name", data.Name))
	return data, nil
}

// Update overwrites the profile document with new data.
func (s *Store) Update(ctx context.Context, kind Kind, data Data) error {
	if err := data.validate(); err != nil {
		return err
	}
	return s.persist(ctx, kind, data)
}

// Get loads the profile; fails InvalidState when it has not been created.
func (s *Store) Get(ctx context.Context, kind Kind) (Data, error) {
	key, err := kind.storageKey()
	if err != nil {
		return Data{}, err
	}

	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return Data{}, apperrors.NewInvalidState("%s profile does not exist", kind)
		}
		return Data{}, err
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("failed to decode %s profile: %w", kind, err)
	}
	return data, nil
}

func (s *Store) persist(ctx context.Context, kind Kind, data Data) error {
	key, err := kind.storageKey()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s profile: %w", kind, err)
	}
	return s.store.Set(ctx, key, raw)
}
