package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/brokerage/pkg/errors"
)

// Request bodies. Amounts travel as strings so no precision is lost between
// the wire and the decimal type.

type createCustomerRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=100"`
	Surname string `json:"surname" validate:"required,min=1,max=100"`
}

type createOrderRequest struct {
	CustomerID string `json:"customerId" validate:"required,uuid4"`
	AssetCode  string `json:"assetCode" validate:"required"`
	Side       string `json:"side" validate:"required,oneof=BUY SELL"`
	Size       string `json:"size" validate:"required"`
	Price      string `json:"price" validate:"required"`
}

type createTransactionRequest struct {
	CustomerID string `json:"customerId" validate:"required,uuid4"`
	Type       string `json:"type" validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	Amount     string `json:"amount" validate:"required"`
}

func parseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, errors.ErrInvalidArgument.Explain("%s is not a valid UUID", field).Wrap(err)
	}
	return id, nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, errors.ErrInvalidArgument.Explain("%s is not a valid decimal", field).Wrap(err)
	}
	return d, nil
}

// parseDate accepts RFC 3339 timestamps and bare dates.
func parseDate(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, errors.ErrInvalidArgument.Explain("%s is not a valid date", field).Wrap(err)
	}
	return t, nil
}
