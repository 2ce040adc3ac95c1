// Package ownership проверяет, что номер аккаунта принадлежит вызывающему.
package ownership

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/observability"
)

// Validator сверяет номер аккаунта со списком аккаунтов вызывающего.
// Список запрашивается заново при каждом вызове, кэша нет.
type Validator struct {
	directory domain.AccountDirectory
	metrics   *metrics.OrderMetrics
	logger    *log.Entry
}

// NewValidator создаёт валидатор поверх справочника аккаунтов.
func NewValidator(directory domain.AccountDirectory, orderMetrics *metrics.OrderMetrics, logger *log.Entry) *Validator {
	if logger == nil {
		logger = log.WithField("component", "ownership")
	}
	return &Validator{
		directory: directory,
		metrics:   orderMetrics,
		logger:    logger,
	}
}

// Validate возвращает nil, если accountNumber есть среди аккаунтов вызывающего,
// domain.ErrAccountNotOwned, если его нет, и ошибку справочника как есть.
func (v *Validator) Validate(ctx context.Context, caller domain.Caller, accountNumber string) (err error) {
	ctx, span := observability.StartSpan(ctx, "ownership.Validate",
		attribute.String("account_number", accountNumber),
	)
	defer func() { observability.EndSpan(span, err) }()

	v.logger.WithFields(log.Fields{
		"account_number": accountNumber,
		"subject":        caller.Subject,
	}).Debug("validate account number")

	accounts, err := v.directory.ListAccounts(ctx, caller)
	if err != nil {
		v.metrics.RecordOwnershipCheck(metrics.OwnershipResultUnavailable)
		if !errors.Is(err, domain.ErrDirectoryUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrDirectoryUnavailable, err)
		}
		return err
	}

	for _, account := range accounts {
		if account.AccountNumber == accountNumber {
			v.metrics.RecordOwnershipCheck(metrics.OwnershipResultOwned)
			return nil
		}
	}

	v.metrics.RecordOwnershipCheck(metrics.OwnershipResultNotOwned)
	return fmt.Errorf("%w: %s", domain.ErrAccountNotOwned, accountNumber)
}
