// Package orders реализует бизнес-операции над заказами: создание, чтение свёрткой
// журнала, дописывание событий и список заказов аккаунта.
package orders

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// OwnershipValidator проверяет, что аккаунт принадлежит вызывающему.
type OwnershipValidator interface {
	Validate(ctx context.Context, caller domain.Caller, accountNumber string) error
}

// ValidationPolicy определяет, что вызывающий увидит при неудачной проверке владения.
//
// Чтение одного заказа использует PolicyHide: чужой заказ, как и заказ при недоступном
// справочнике, неотличим от несуществующего. Запись событий использует PolicySurface:
// вызывающий получает причину отказа. Список заказов аккаунта проверяет владение один
// раз на входе с PolicySurface, а каждый заказ читает с PolicyHide.
type ValidationPolicy int

const (
	// PolicyHide превращает любую ошибку проверки в domain.ErrOrderNotFound.
	PolicyHide ValidationPolicy = iota
	// PolicySurface возвращает ошибку проверки как есть.
	PolicySurface
)

func (p ValidationPolicy) String() string {
	switch p {
	case PolicyHide:
		return "hide"
	case PolicySurface:
		return "surface"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// resolve переводит ошибку проверки в ответ вызывающему. При PolicyHide исходная ошибка
// не оборачивается, чтобы errors.Is не раскрывал причину.
func (p ValidationPolicy) resolve(orderID string, err error) error {
	if err == nil {
		return nil
	}
	if p == PolicyHide {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	return err
}
