package smtp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/mailcrypt"
	"github.com/ezac101/chainmail/internal/service"
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 【安全说明】
// 这是一个只接收邮件的 SMTP 桥接器（Receiving-Only Bridge）。
// 传统邮件系统的来信在这里被加密后写入账本：
// - 收件地址形如 <0x十六进制地址>@<桥接域名>
// - 只接受已在账本注册公钥的收件地址，否则无法加密
// - 正文用收件人公钥加密后存入内容库，账本只记录内容指针
// - 发件方统一记账为桥接账户地址，原始发件人保留在密文内
// - 不支持对外发送邮件，不会成为开放中继
type Backend struct {
	relay    *service.RelayService
	ledger   *service.LedgerService
	contents *service.ContentService
	limiter  *ConnectionLimiter
	log      *zap.Logger

	// 桥接身份
	account domain.Address
	domain  string

	maxMessageBytes int64
}

// NewBackend 创建 SMTP 桥接后端。
func NewBackend(
	relay *service.RelayService,
	ledger *service.LedgerService,
	contents *service.ContentService,
	limiter *ConnectionLimiter,
	account domain.Address,
	bridgeDomain string,
	maxMessageBytes int64,
	log *zap.Logger,
) *Backend {
	return &Backend{
		relay:           relay,
		ledger:          ledger,
		contents:        contents,
		limiter:         limiter,
		log:             log,
		account:         account,
		domain:          strings.ToLower(bridgeDomain),
		maxMessageBytes: maxMessageBytes,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}

	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []recipient
	released    bool
}

type recipient struct {
	address   domain.Address
	publicKey string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 【安全关键】只接受形如 <账户地址>@<桥接域名> 的收件人，
// 并且该账户必须已在账本注册公钥。没有公钥就没有加密对象，
// 本桥接器绝不写入明文。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	parts := strings.Split(addr, "@")
	if len(parts) != 2 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if parts[1] != s.backend.domain {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}

	account, err := domain.ParseAddress(parts[0])
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient is not a ledger account address",
		}
	}

	key, err := s.backend.ledger.GetPublicKey(account)
	if err != nil || key == "" {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 10},
			Message:      "recipient has no registered encryption key",
		}
	}

	s.recipients = append(s.recipients, recipient{address: account, publicKey: key})
	return nil
}

// Data 处理邮件内容。
//
// 整封原始邮件作为明文加密，收件人解密后仍能看到原始的
// From/Subject 头。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, s.backend.maxMessageBytes))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, rcpt := range s.recipients {
		ciphertext, err := mailcrypt.Encrypt(string(rawBytes), rcpt.publicKey)
		if err != nil {
			s.backend.log.Error("桥接加密失败",
				zap.String("recipient", rcpt.address.String()),
				zap.Error(err))
			return fmt.Errorf("encrypt for %s: %w", rcpt.address, err)
		}

		cid, err := s.backend.contents.Upload(ctx, []byte(ciphertext))
		if err != nil {
			return fmt.Errorf("store ciphertext: %w", err)
		}

		result, err := s.backend.relay.SubmitEmail(s.backend.account, rcpt.address, cid)
		if err != nil {
			return fmt.Errorf("ledger submit: %w", err)
		}

		s.backend.log.Info("桥接邮件已上账",
			zap.String("from", s.fromAddress),
			zap.String("recipient", rcpt.address.String()),
			zap.Uint64("email_id", result.ID),
			zap.String("tx_hash", result.TxHash))
	}

	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if s.backend.limiter != nil && !s.released {
		s.backend.limiter.Release()
		s.released = true
	}
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
