// Package customer manages brokerage customers. The core trusts customer
// identifiers handed to it; authorization is an external collaborator.
package customer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/brokerage/pkg/errors"
	"github.com/Aidin1998/brokerage/pkg/models"
)

// Service implements customer lookup and registration
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new customer service
func NewService(logger *zap.Logger, db *gorm.DB) *Service {
	return &Service{logger: logger, db: db}
}

// Create registers a new customer. Registration is a single atomic row
// create; a failure leaves nothing behind.
func (s *Service) Create(ctx context.Context, name, surname string) (*models.Customer, error) {
	if name == "" || surname == "" {
		return nil, errors.ErrInvalidArgument.Explain("name and surname are required")
	}

	now := time.Now()
	c := &models.Customer{
		ID:        uuid.New(),
		Name:      name,
		Surname:   surname,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, errors.New("failed to create customer").Wrap(err)
	}

	s.logger.Info("customer registered", zap.String("customer_id", c.ID.String()))
	return c, nil
}

// GetEnabled returns the customer if it exists and is enabled, otherwise
// CustomerNotFound. Disabled customers are indistinguishable from missing
// ones on purpose.
func (s *Service) GetEnabled(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := s.db.WithContext(ctx).Where("id = ? AND enabled = ?", customerID, true).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrCustomerNotFound
		}
		return nil, errors.New("failed to find customer").Wrap(err)
	}
	return &c, nil
}

// List returns all customers, including disabled ones, ordered by
// registration time.
func (s *Service) List(ctx context.Context) ([]*models.Customer, error) {
	var customers []*models.Customer
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&customers).Error; err != nil {
		return nil, errors.New("failed to list customers").Wrap(err)
	}
	return customers, nil
}

// SetEnabled flips the trading gate for a customer.
func (s *Service) SetEnabled(ctx context.Context, customerID uuid.UUID, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		Updates(map[string]interface{}{"enabled": enabled, "updated_at": time.Now()})
	if res.Error != nil {
		return errors.New("failed to update customer").Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.ErrCustomerNotFound
	}
	return nil
}
