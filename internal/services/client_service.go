package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/gatehouse-idp/gatehouse/internal/interaction"
	"github.com/gatehouse-idp/gatehouse/internal/models"
)

// ClientService resolves registered relying-party clients.
type ClientService struct {
	db *gorm.DB
}

// NewClientService constructs a ClientService.
func NewClientService(db *gorm.DB) (*ClientService, error) {
	if db == nil {
		return nil, errors.New("client service: db is required")
	}
	return &ClientService{db: db}, nil
}

// FindEnabled resolves an enabled client by its client id. Unknown and
// disabled clients yield (nil, nil); callers degrade to default behaviour.
func (s *ClientService) FindEnabled(ctx context.Context, clientID string) (*interaction.Client, error) {
	record, err := s.find(ctx, clientID)
	if err != nil || record == nil {
		return nil, err
	}

	return &interaction.Client{
		ClientID:                     record.ClientID,
		DisplayName:                  record.DisplayName,
		EnableLocalLogin:             record.EnableLocalLogin,
		IdentityProviderRestrictions: record.IdentityProviderRestrictions,
	}, nil
}

// Describe returns the full stored client record, or (nil, nil) if absent.
// The authorization glue endpoint needs redirect URIs and the native flag,
// which the interaction layer deliberately does not carry.
func (s *ClientService) Describe(ctx context.Context, clientID string) (*models.Client, error) {
	return s.find(ctx, clientID)
}

// Create registers a new relying-party client.
func (s *ClientService) Create(ctx context.Context, client *models.Client) error {
	if client == nil || strings.TrimSpace(client.ClientID) == "" {
		return errors.New("client service: client id is required")
	}
	if err := s.db.WithContext(ctx).Create(client).Error; err != nil {
		return fmt.Errorf("client service: create client: %w", err)
	}
	return nil
}

func (s *ClientService) find(ctx context.Context, clientID string) (*models.Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, nil
	}

	var record models.Client
	err := s.db.WithContext(ctx).
		First(&record, "client_id = ? AND enabled = ?", clientID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("client service: lookup client: %w", err)
	}
	return &record, nil
}
