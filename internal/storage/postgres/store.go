package postgres

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage"
)

// ledgerCounter 账本计数器行（单行表，id 固定为 1）。
//
// 编号分配与记录插入在同一事务内基于该行的行锁串行化，
// 保证稠密单调的编号与记录写入要么一起提交要么一起回滚。
type ledgerCounter struct {
	ID           uint   `gorm:"primaryKey"`
	EmailCount   uint64 `gorm:"not null;default:0"`
	RelayBalance uint64 `gorm:"not null;default:0"`
	GasSpent     uint64 `gorm:"not null;default:0"`
}

// TableName 指定 GORM 表名。
func (ledgerCounter) TableName() string {
	return "ledger_counters"
}

// Store PostgreSQL 存储实现。
type Store struct {
	db *gorm.DB

	// 限流计数在进程内维护；多节点部署时由 hybrid 存储的
	// Redis 实现接管。
	rlMu       sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore 创建 PostgreSQL 存储并执行自动迁移。
func NewStore(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:         db,
		rateLimits: make(map[string]*rateLimitEntry),
	}

	if err := store.Migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Migrate 执行自动迁移并初始化计数器行。
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&domain.EmailRecord{},
		&domain.PublicKeyRegistration{},
		&domain.Event{},
		&domain.Roles{},
		&domain.Operator{},
		&ledgerCounter{},
	); err != nil {
		return err
	}

	counter := ledgerCounter{ID: 1}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error
}

// AppendEmail 在单个事务内分配编号、写入记录并追加事件。
func (s *Store) AppendEmail(record *domain.EmailRecord) (*domain.EmailRecord, error) {
	stored := *record
	stored.Immutable = true

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var counter ledgerCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&counter, 1).Error; err != nil {
			return err
		}

		counter.EmailCount++
		stored.ID = counter.EmailCount

		if err := tx.Model(&ledgerCounter{}).Where("id = ?", 1).
			Update("email_count", counter.EmailCount).Error; err != nil {
			return err
		}
		if err := tx.Create(&stored).Error; err != nil {
			return err
		}
		return tx.Create(domain.NewEmailSentEvent(&stored)).Error
	})
	if err != nil {
		return nil, err
	}

	return &stored, nil
}

// GetEmail 按编号读取邮件记录。
func (s *Store) GetEmail(id uint64) (*domain.EmailRecord, error) {
	var record domain.EmailRecord
	err := s.db.First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRecipientEmails 返回某账户作为收件人的记录编号（按编号升序，即时间序）。
func (s *Store) ListRecipientEmails(account domain.Address) ([]uint64, error) {
	return s.listEmailIDs("recipient", account)
}

// ListSenderEmails 返回某账户作为发件人的记录编号（按编号升序）。
func (s *Store) ListSenderEmails(account domain.Address) ([]uint64, error) {
	return s.listEmailIDs("sender", account)
}

func (s *Store) listEmailIDs(column string, account domain.Address) ([]uint64, error) {
	ids := make([]uint64, 0)
	err := s.db.Model(&domain.EmailRecord{}).
		Where(fmt.Sprintf("%s = ?", column), account).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TotalEmails 返回计数器中的记录总数。
func (s *Store) TotalEmails() (uint64, error) {
	var counter ledgerCounter
	if err := s.db.First(&counter, 1).Error; err != nil {
		return 0, err
	}
	return counter.EmailCount, nil
}

// SavePublicKey 覆盖写入公钥并在同一事务内追加事件。
func (s *Store) SavePublicKey(reg *domain.PublicKeyRegistration) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"public_key", "registered_at"}),
		}).Create(reg).Error; err != nil {
			return err
		}
		return tx.Create(domain.NewPublicKeyRegisteredEvent(reg)).Error
	})
}

// GetPublicKey 返回账户当前公钥，未登记时为空字符串。
func (s *Store) GetPublicKey(account domain.Address) (string, error) {
	var reg domain.PublicKeyRegistration
	err := s.db.First(&reg, "account = ?", account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return reg.PublicKey, nil
}

// CountPublicKeys 返回已登记公钥的账户数。
func (s *Store) CountPublicKeys() (uint64, error) {
	var count int64
	if err := s.db.Model(&domain.PublicKeyRegistration{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return uint64(count), nil
}

// ListEvents 返回 seq > afterSeq 的前 limit 条事件。
func (s *Store) ListEvents(afterSeq uint64, limit int) ([]domain.Event, error) {
	events := make([]domain.Event, 0)
	query := s.db.Where("seq > ?", afterSeq).Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// LatestEventSeq 返回最新事件序号。
func (s *Store) LatestEventSeq() (uint64, error) {
	var seq *uint64
	err := s.db.Model(&domain.Event{}).Select("MAX(seq)").Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	if seq == nil {
		return 0, nil
	}
	return *seq, nil
}

// GetRoles 返回账本角色。
func (s *Store) GetRoles() (*domain.Roles, error) {
	var roles domain.Roles
	err := s.db.First(&roles, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrRolesNotInitialized
	}
	if err != nil {
		return nil, err
	}
	return &roles, nil
}

// SaveRoles 持久化账本角色。
func (s *Store) SaveRoles(roles *domain.Roles) error {
	roles.ID = 1
	return s.db.Save(roles).Error
}

// RelayBalance 返回当前中继余额。
func (s *Store) RelayBalance() (uint64, error) {
	var counter ledgerCounter
	if err := s.db.First(&counter, 1).Error; err != nil {
		return 0, err
	}
	return counter.RelayBalance, nil
}

// CreditBalance 增加中继余额。
func (s *Store) CreditBalance(amount uint64) (uint64, error) {
	var balance uint64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var counter ledgerCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&counter, 1).Error; err != nil {
			return err
		}
		counter.RelayBalance += amount
		balance = counter.RelayBalance
		return tx.Model(&ledgerCounter{}).Where("id = ?", 1).
			Update("relay_balance", counter.RelayBalance).Error
	})
	return balance, err
}

// DebitBalance 扣减中继余额，不足时拒绝且不产生部分扣减。
func (s *Store) DebitBalance(amount uint64) (uint64, error) {
	var balance uint64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var counter ledgerCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&counter, 1).Error; err != nil {
			return err
		}
		if counter.RelayBalance < amount {
			balance = counter.RelayBalance
			return storage.ErrInsufficientBalance
		}
		counter.RelayBalance -= amount
		counter.GasSpent += amount
		balance = counter.RelayBalance
		return tx.Model(&ledgerCounter{}).Where("id = ?", 1).Updates(map[string]interface{}{
			"relay_balance": counter.RelayBalance,
			"gas_spent":     counter.GasSpent,
		}).Error
	})
	return balance, err
}

// TotalGasSpent 返回中继累计消耗的 gas。
func (s *Store) TotalGasSpent() (uint64, error) {
	var counter ledgerCounter
	if err := s.db.First(&counter, 1).Error; err != nil {
		return 0, err
	}
	return counter.GasSpent, nil
}

// CreateOperator 创建运营账户。
func (s *Store) CreateOperator(op *domain.Operator) error {
	var count int64
	if err := s.db.Model(&domain.Operator{}).
		Where("username = ?", op.Username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return storage.ErrOperatorExists
	}
	return s.db.Create(op).Error
}

// GetOperatorByID 按 ID 查找运营账户。
func (s *Store) GetOperatorByID(id string) (*domain.Operator, error) {
	var op domain.Operator
	err := s.db.First(&op, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrOperatorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// GetOperatorByUsername 按用户名查找运营账户。
func (s *Store) GetOperatorByUsername(username string) (*domain.Operator, error) {
	var op domain.Operator
	err := s.db.First(&op, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrOperatorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// UpdateOperatorLastLogin 更新运营账户的最近登录时间。
func (s *Store) UpdateOperatorLastLogin(id string) error {
	return s.db.Model(&domain.Operator{}).Where("id = ?", id).
		Update("last_login_at", time.Now().UTC()).Error
}

// IncrementRateLimit 递增限流计数（进程内实现）。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.rlMu.Lock()
	defer s.rlMu.Unlock()

	now := time.Now()
	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.ExpiresAt) {
		entry = &rateLimitEntry{ExpiresAt: now.Add(window)}
		s.rateLimits[key] = entry
	}
	entry.Count++
	return entry.Count, nil
}

// GetRateLimit 返回当前限流计数。
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.rlMu.Lock()
	defer s.rlMu.Unlock()

	entry, ok := s.rateLimits[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
