package grpcsvc

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// errorSource различает, откуда пришла ошибка входных данных: из запроса
// или из уже сохранённой истории заказа.
type errorSource int

const (
	sourceRequest errorSource = iota
	sourceHistory
)

// toStatus переводит доменную ошибку в gRPC-статус. Внутренние ошибки логируются
// и наружу уходят без деталей.
func (s *OrderService) toStatus(err error, source errorSource, fields log.Fields) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
	case errors.Is(err, domain.ErrAccountNotOwned):
		return status.Error(codes.PermissionDenied, domain.ErrAccountNotOwned.Error())
	case errors.Is(err, domain.ErrMissingShippingAddress):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrDirectoryUnavailable):
		return status.Error(codes.Unavailable, domain.ErrDirectoryUnavailable.Error())
	case errors.Is(err, domain.ErrUnknownEventType), errors.Is(err, domain.ErrInvalidInput):
		if source == sourceHistory {
			s.logger.WithError(err).WithFields(fields).Error("stored order history is corrupt")
			return status.Error(codes.DataLoss, "order history cannot be aggregated")
		}
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		s.logger.WithError(err).WithFields(fields).Error("order operation failed")
		return status.Error(codes.Internal, "internal error")
	}
}
