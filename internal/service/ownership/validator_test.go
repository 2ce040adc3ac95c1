package ownership_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders/internal/clients/accounts"
	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/service/ownership"
)

var caller = domain.Caller{Subject: "alice", Token: "t"}

func newValidator(dir domain.AccountDirectory) *ownership.Validator {
	return ownership.NewValidator(dir, metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry()), nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		accounts []domain.Account
		dirErr   error
		number   string
		wantErr  error
	}{
		{
			name:     "owned",
			accounts: []domain.Account{{AccountNumber: "A001"}, {AccountNumber: "A002"}},
			number:   "A002",
		},
		{
			name:     "not owned",
			accounts: []domain.Account{{AccountNumber: "A001"}},
			number:   "B001",
			wantErr:  domain.ErrAccountNotOwned,
		},
		{
			name:     "exact match only",
			accounts: []domain.Account{{AccountNumber: "A001"}},
			number:   "a001",
			wantErr:  domain.ErrAccountNotOwned,
		},
		{
			name:    "empty account list",
			number:  "A001",
			wantErr: domain.ErrAccountNotOwned,
		},
		{
			name:    "directory down",
			dirErr:  domain.ErrDirectoryUnavailable,
			number:  "A001",
			wantErr: domain.ErrDirectoryUnavailable,
		},
		{
			name:    "unclassified directory error",
			dirErr:  errors.New("connection reset"),
			number:  "A001",
			wantErr: domain.ErrDirectoryUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := accounts.NewMockDirectory(tt.accounts...)
			dir.SetErr(tt.dirErr)

			err := newValidator(dir).Validate(context.Background(), caller, tt.number)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_FetchesDirectoryOnEveryCall(t *testing.T) {
	dir := accounts.NewMockDirectory(domain.Account{AccountNumber: "A001"})
	v := newValidator(dir)

	require.NoError(t, v.Validate(context.Background(), caller, "A001"))

	dir.SetAccounts(domain.Account{AccountNumber: "A002"})
	require.ErrorIs(t, v.Validate(context.Background(), caller, "A001"), domain.ErrAccountNotOwned)

	assert.Equal(t, 2, dir.Calls())
}
