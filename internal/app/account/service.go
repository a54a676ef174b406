package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
)

// Service implements account lifecycle and key verification.
type Service struct {
	store  domain.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates an account service over the given store.
func NewService(store domain.Store) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: log.WithComponent("account"),
	}
}

// Create mints a new account and returns it with the plaintext key. The key
// is not recoverable afterwards.
func (s *Service) Create() (*domain.Account, string, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, "", err
	}

	acct := domain.Account{
		ID:        uuid.NewString(),
		KeyHash:   HashKey(key),
		KeyPrefix: KeyPrefix(key),
		Status:    domain.AccountActive,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAccount(acct); err != nil {
		return nil, "", err
	}

	s.logger.Info().
		Str("account_id", acct.ID).
		Str("key", MaskKey(key)).
		Msg("account created")
	return &acct, key, nil
}

// Verify resolves an account key to its active account. Malformed keys,
// unknown keys, and non-active accounts all fail with ErrUnauthorized so
// callers cannot distinguish which check tripped.
func (s *Service) Verify(key string) (*domain.Account, error) {
	if err := checkFormat(key); err != nil {
		return nil, domain.ErrUnauthorized
	}

	acct, err := s.store.GetAccountByKeyHash(HashKey(key))
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	if acct.Status != domain.AccountActive {
		return nil, domain.ErrUnauthorized
	}

	if err := s.store.TouchAccount(acct.ID); err != nil {
		s.logger.Warn().Err(err).Str("account_id", acct.ID).Msg("touch account")
	}
	return acct, nil
}

// Suspend blocks an account's key and any future node registrations.
func (s *Service) Suspend(id string) error {
	if err := s.store.UpdateAccountStatus(id, domain.AccountSuspended); err != nil {
		return err
	}
	s.logger.Info().Str("account_id", id).Msg("account suspended")
	return nil
}

// Reactivate restores a suspended account.
func (s *Service) Reactivate(id string) error {
	acct, err := s.store.GetAccountByID(id)
	if err != nil {
		return err
	}
	if acct.Status == domain.AccountDeleted {
		return domain.ErrForbidden
	}
	if err := s.store.UpdateAccountStatus(id, domain.AccountActive); err != nil {
		return err
	}
	s.logger.Info().Str("account_id", id).Msg("account reactivated")
	return nil
}

// List returns all accounts.
func (s *Service) List() ([]domain.Account, error) {
	return s.store.ListAccounts()
}

// Info describes one account for the admin surface.
type Info struct {
	Account   domain.Account `json:"account"`
	NodeCount int            `json:"node_count"`
	MaskedKey string         `json:"masked_key"`
}

// Describe returns an account with its linked node count.
func (s *Service) Describe(id string) (*Info, error) {
	acct, err := s.store.GetAccountByID(id)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountAccountNodes(id)
	if err != nil {
		return nil, err
	}
	return &Info{
		Account:   *acct,
		NodeCount: count,
		MaskedKey: acct.KeyPrefix + " **** **** ****",
	}, nil
}
