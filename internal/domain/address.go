package domain

import (
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength 账户地址的字节长度
const AddressLength = 20

var (
	// ErrInvalidAddress 地址格式无效
	ErrInvalidAddress = errors.New("invalid account address")
)

// Address 表示一个账本参与者的账户地址（20 字节定长标识）。
type Address [AddressLength]byte

// ZeroAddress 全零地址，任何写操作都拒绝该值。
var ZeroAddress = Address{}

// ParseAddress 解析 "0x" 前缀的十六进制地址字符串。
func ParseAddress(s string) (Address, error) {
	var addr Address

	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(trimmed) != AddressLength*2 {
		return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	copy(addr[:], raw)
	return addr, nil
}

// MustParseAddress 解析地址，失败时 panic，仅用于测试和常量初始化。
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// IsZero 判断是否为全零地址。
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String 返回小写 "0x" 前缀的十六进制表示。
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText 实现 encoding.TextMarshaler，JSON 序列化为十六进制字符串。
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler。
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value 实现 driver.Valuer，数据库中存储为十六进制字符串。
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan 实现 sql.Scanner。
func (a *Address) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: unsupported scan type %T", ErrInvalidAddress, value)
	}
}
