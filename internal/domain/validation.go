package domain

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptyContentPointer 内容指针为空
	ErrEmptyContentPointer = errors.New("content pointer must not be empty")
	// ErrContentPointerTooLong 内容指针超长
	ErrContentPointerTooLong = errors.New("content pointer too long")
	// ErrEmptyPublicKey 公钥为空
	ErrEmptyPublicKey = errors.New("public key must not be empty")
	// ErrMalformedPublicKey 公钥不是 armored PGP 公钥块
	ErrMalformedPublicKey = errors.New("malformed armored public key")
)

// MaxContentPointerLength 内容指针的最大长度。
// 内容指针对账本是不透明字符串，长度上限只是防滥用措施。
const MaxContentPointerLength = 512

var armoredPublicKeyRegex = regexp.MustCompile(
	`(?s)-----BEGIN PGP PUBLIC KEY BLOCK-----.*-----END PGP PUBLIC KEY BLOCK-----`)

// ValidateContentPointer 校验内容指针：非空且不超长。
// 账本不解释其字节，也不保证内容可达。
func ValidateContentPointer(pointer string) error {
	if strings.TrimSpace(pointer) == "" {
		return ErrEmptyContentPointer
	}
	if len(pointer) > MaxContentPointerLength {
		return ErrContentPointerTooLong
	}
	return nil
}

// ValidateArmoredPublicKey 校验公钥为 armored PGP 公钥块。
//
// 账本合约本身只要求公钥非空；armor 格式检查属于中继节点的
// 前置校验，避免把明显损坏的密钥写入链上。
func ValidateArmoredPublicKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyPublicKey
	}
	if !armoredPublicKeyRegex.MatchString(key) {
		return ErrMalformedPublicKey
	}
	return nil
}
