package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/config"
	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage"
)

var (
	// ErrRelayBalanceTooLow 中继余额低于配置的最低水位
	ErrRelayBalanceTooLow = errors.New("relay balance below configured minimum")
)

// SubmitResult 中继提交的回执。
type SubmitResult struct {
	ID      uint64 `json:"id,omitempty"`
	TxHash  string `json:"txHash"`
	GasUsed uint64 `json:"gasUsed"`
}

// RelayService 实现中继代付层。
//
// 中继用自己的身份调用账本的 *For 入口，把手续费成本从终端用户
// 转移到节点运营方。这是能力委托而不是签名转发：账本只信任中继
// 的调用方身份，"发件人是否真的授权" 取决于运营方的后端访问
// 控制。提交前的余额检查在这里完成，不足时直接拒绝，不触碰
// 账本状态。
type RelayService struct {
	ledger  *LedgerService
	balance storage.RelayBalanceRepository
	cfg     config.RelayConfig
	relay   func() (domain.Address, error)
	log     *zap.Logger
}

// NewRelayService 创建中继服务。
//
// 中继地址每次提交时从账本角色读取，setRelayAddress 的变更
// 立即生效。
func NewRelayService(ledger *LedgerService, balance storage.RelayBalanceRepository,
	cfg config.RelayConfig, log *zap.Logger) *RelayService {

	return &RelayService{
		ledger:  ledger,
		balance: balance,
		cfg:     cfg,
		relay: func() (domain.Address, error) {
			roles, err := ledger.Roles()
			if err != nil {
				return domain.ZeroAddress, err
			}
			return roles.RelayAddress, nil
		},
		log: log,
	}
}

// Bootstrap 首次启动时注入初始余额。
//
// 只在余额为零时注资，重启不会重复注入。
func (s *RelayService) Bootstrap() error {
	current, err := s.balance.RelayBalance()
	if err != nil {
		return err
	}
	if current > 0 || s.cfg.InitialBalance == 0 {
		return nil
	}

	balance, err := s.balance.CreditBalance(s.cfg.InitialBalance)
	if err != nil {
		return err
	}
	s.log.Info("relay balance bootstrapped", zap.Uint64("balance", balance))
	return nil
}

// SubmitEmail 代表 sender 提交一条邮件记录。
//
// 流程：估算 gas → 余额水位检查 → 扣费 → 提交账本。
// 账本拒绝时返还已扣的 gas，保证失败的提交不消耗余额。
func (s *RelayService) SubmitEmail(sender, recipient domain.Address, contentPointer string) (*SubmitResult, error) {
	// 账本会再次校验；这里先拒绝可以避免对无效请求扣费
	if sender.IsZero() || recipient.IsZero() {
		return nil, ErrZeroAddress
	}
	if err := domain.ValidateContentPointer(contentPointer); err != nil {
		return nil, err
	}

	gas := s.estimateGas(len(contentPointer))
	if err := s.reserve(gas); err != nil {
		return nil, err
	}

	relayAddr, err := s.relay()
	if err != nil {
		s.refund(gas)
		return nil, err
	}

	id, err := s.ledger.LogSendFor(relayAddr, sender, recipient, contentPointer)
	if err != nil {
		s.refund(gas)
		return nil, err
	}

	record, err := s.ledger.GetEmail(id)
	if err != nil {
		return nil, err
	}

	s.log.Info("email relayed",
		zap.Uint64("id", id),
		zap.String("sender", sender.String()),
		zap.String("recipient", recipient.String()),
		zap.Uint64("gas_used", gas),
	)

	return &SubmitResult{
		ID:      id,
		TxHash:  txHash(fmt.Sprintf("email|%d|%s|%s|%s|%d", id, sender, recipient, contentPointer, record.CreatedAt.UnixNano())),
		GasUsed: gas,
	}, nil
}

// RegisterKey 代表 account 登记公钥。
func (s *RelayService) RegisterKey(account domain.Address, key string) (*SubmitResult, error) {
	if account.IsZero() {
		return nil, ErrZeroAddress
	}
	if err := domain.ValidateArmoredPublicKey(key); err != nil {
		return nil, err
	}

	gas := s.estimateGas(len(key))
	if err := s.reserve(gas); err != nil {
		return nil, err
	}

	relayAddr, err := s.relay()
	if err != nil {
		s.refund(gas)
		return nil, err
	}

	if err := s.ledger.RegisterPublicKeyFor(relayAddr, account, key); err != nil {
		s.refund(gas)
		return nil, err
	}

	s.log.Info("public key relayed",
		zap.String("account", account.String()),
		zap.Uint64("gas_used", gas),
	)

	return &SubmitResult{
		TxHash:  txHash(fmt.Sprintf("key|%s|%s", account, key)),
		GasUsed: gas,
	}, nil
}

// Balance 返回当前中继余额。
func (s *RelayService) Balance() (uint64, error) {
	return s.balance.RelayBalance()
}

// Credit 运营方注资。
func (s *RelayService) Credit(amount uint64) (uint64, error) {
	return s.balance.CreditBalance(amount)
}

// GasSpent 返回累计消耗的 gas。
func (s *RelayService) GasSpent() (uint64, error) {
	return s.balance.TotalGasSpent()
}

// MinBalance 返回配置的最低余额水位。
func (s *RelayService) MinBalance() uint64 {
	return s.cfg.MinBalance
}

// estimateGas 按载荷大小确定性地估算 gas。
func (s *RelayService) estimateGas(payloadBytes int) uint64 {
	return s.cfg.BaseGas + s.cfg.GasPerByte*uint64(payloadBytes)
}

// reserve 执行提交前余额检查并扣费。
//
// 扣费后余额不得低于最低水位；违反时回滚扣费并拒绝。
func (s *RelayService) reserve(gas uint64) error {
	remaining, err := s.balance.DebitBalance(gas)
	if errors.Is(err, storage.ErrInsufficientBalance) {
		return ErrRelayBalanceTooLow
	}
	if err != nil {
		return err
	}
	if remaining < s.cfg.MinBalance {
		s.refund(gas)
		return ErrRelayBalanceTooLow
	}
	return nil
}

// refund 返还已扣的 gas（账本拒绝时调用）。
func (s *RelayService) refund(gas uint64) {
	if _, err := s.balance.CreditBalance(gas); err != nil {
		s.log.Error("failed to refund relay gas", zap.Uint64("gas", gas), zap.Error(err))
	}
}

// txHash 计算提交回执的交易哈希。
func txHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return "0x" + hex.EncodeToString(sum[:])
}
