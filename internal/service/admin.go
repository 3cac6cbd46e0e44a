package service

import (
	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage"
)

// AdminService 提供运营侧的账本管理操作。
//
// 角色变更最终由账本校验，这里只是把当前所有者身份透传
// 下去并汇总统计数据。
type AdminService struct {
	ledger *LedgerService
	relay  *RelayService
	store  storage.Store

	storageBackend string
	contentBackend string
}

// NewAdminService 创建管理服务。
func NewAdminService(ledger *LedgerService, relay *RelayService, store storage.Store,
	storageBackend, contentBackend string) *AdminService {
	return &AdminService{
		ledger:         ledger,
		relay:          relay,
		store:          store,
		storageBackend: storageBackend,
		contentBackend: contentBackend,
	}
}

// SetRelayAddress 以 caller 身份更换授权中继地址。
func (s *AdminService) SetRelayAddress(caller, newRelay domain.Address) error {
	return s.ledger.SetRelayAddress(caller, newRelay)
}

// TransferOwnership 以 caller 身份转移账本所有权。
func (s *AdminService) TransferOwnership(caller, newOwner domain.Address) error {
	return s.ledger.TransferOwnership(caller, newOwner)
}

// CreditRelay 为中继账户充值，返回新余额。
func (s *AdminService) CreditRelay(amount uint64) (uint64, error) {
	return s.relay.Credit(amount)
}

// Statistics 汇总账本统计信息。
func (s *AdminService) Statistics() (*domain.LedgerStatistics, error) {
	total, err := s.ledger.GetTotalEmails()
	if err != nil {
		return nil, err
	}

	latestSeq, err := s.ledger.LatestEventSeq()
	if err != nil {
		return nil, err
	}

	keys, err := s.store.CountPublicKeys()
	if err != nil {
		return nil, err
	}

	balance, err := s.relay.Balance()
	if err != nil {
		return nil, err
	}

	gasSpent, err := s.relay.GasSpent()
	if err != nil {
		return nil, err
	}

	roles, err := s.ledger.Roles()
	if err != nil {
		return nil, err
	}

	return &domain.LedgerStatistics{
		TotalEmails:    total,
		TotalEvents:    latestSeq,
		RegisteredKeys: keys,
		RelayBalance:   balance,
		RelayGasSpent:  gasSpent,
		Owner:          roles.Owner,
		RelayAddress:   roles.RelayAddress,
		ContentBackend: s.contentBackend,
		StorageBackend: s.storageBackend,
	}, nil
}
