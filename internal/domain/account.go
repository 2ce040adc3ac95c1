package domain

// AddressType — тип адреса аккаунта.
type AddressType string

const (
	AddressTypeShipping AddressType = "SHIPPING"
	AddressTypeBilling  AddressType = "BILLING"
)

// Address принадлежит ровно одному аккаунту.
type Address struct {
	Street1     string      `json:"street1"`
	Street2     string      `json:"street2,omitempty"`
	State       string      `json:"state,omitempty"`
	City        string      `json:"city"`
	Country     string      `json:"country"`
	ZipCode     string      `json:"zip_code"`
	AddressType AddressType `json:"address_type"`
}

// Account описывает аккаунт из внешнего справочника. Для сервиса заказов — только чтение.
type Account struct {
	AccountNumber  string    `json:"account_number"`
	DefaultAccount bool      `json:"default_account"`
	Addresses      []Address `json:"addresses"`
}

// FirstAddress возвращает первый адрес заданного типа.
func (a Account) FirstAddress(addressType AddressType) (Address, bool) {
	for _, address := range a.Addresses {
		if address.AddressType == addressType {
			return address, true
		}
	}
	return Address{}, false
}

// DefaultAccount выбирает первый аккаунт с флагом default.
func DefaultAccount(accounts []Account) (Account, bool) {
	for _, account := range accounts {
		if account.DefaultAccount {
			return account, true
		}
	}
	return Account{}, false
}

// Caller — идентичность вызывающего, с которой запрашиваются его аккаунты.
type Caller struct {
	// Subject — идентификатор пользователя (используется только для логов и трассировки).
	Subject string
	// Token — bearer-токен, пробрасываемый в справочник аккаунтов.
	Token string
}
