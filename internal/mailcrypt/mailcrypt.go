// Package mailcrypt 实现客户端侧的 PGP 加解密。
//
// 节点永远不调用 Decrypt：加密在发送端完成，解密在接收端完成，
// 链路上只流转 armor 封装的密文。这里提供的是客户端工具与
// SMTP 桥接所需的最小能力。
package mailcrypt

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	_ "golang.org/x/crypto/ripemd160"
)

var (
	// ErrNoKey 表示 armor 块中没有可用的密钥。
	ErrNoKey = errors.New("no usable key in armored block")
	// ErrDecryptFailed 表示密文无法用给定私钥解开。
	ErrDecryptFailed = errors.New("decryption failed")
	// ErrBadPassphrase 表示私钥口令错误。
	ErrBadPassphrase = errors.New("wrong passphrase")
)

const (
	publicKeyBlock  = "PGP PUBLIC KEY BLOCK"
	privateKeyBlock = "PGP PRIVATE KEY BLOCK"
	messageBlock    = "PGP MESSAGE"
)

// KeyPair 一对 armor 编码的 PGP 密钥。
type KeyPair struct {
	PublicKeyArmor  string
	PrivateKeyArmor string
}

// GenerateKeyPair 生成新的 PGP 密钥对。
//
// 私钥以明文 armor 返回，口令保护由调用方的密钥库负责。
func GenerateKeyPair(name, email string) (*KeyPair, error) {
	entity, err := openpgp.NewEntity(name, "", email, nil)
	if err != nil {
		return nil, err
	}

	privArmor, err := serializeEntity(entity, privateKeyBlock, func(w io.Writer) error {
		return entity.SerializePrivate(w, nil)
	})
	if err != nil {
		return nil, err
	}

	pubArmor, err := serializeEntity(entity, publicKeyBlock, entity.Serialize)
	if err != nil {
		return nil, err
	}

	return &KeyPair{PublicKeyArmor: pubArmor, PrivateKeyArmor: privArmor}, nil
}

// Encrypt 用接收方公钥加密明文，返回 armor 封装的密文。
func Encrypt(plaintext string, recipientKeyArmor string) (string, error) {
	entity, err := ReadEntity(recipientKeyArmor)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	armorWriter, err := armor.Encode(&buf, messageBlock, nil)
	if err != nil {
		return "", err
	}

	plainWriter, err := openpgp.Encrypt(armorWriter, []*openpgp.Entity{entity}, nil, nil, nil)
	if err != nil {
		return "", err
	}

	if _, err := plainWriter.Write([]byte(plaintext)); err != nil {
		return "", err
	}
	if err := plainWriter.Close(); err != nil {
		return "", err
	}
	if err := armorWriter.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// Decrypt 用私钥解开 armor 密文。
//
// passphrase 为空表示私钥未加口令。
func Decrypt(ciphertext, privateKeyArmor, passphrase string) (string, error) {
	entity, err := ReadEntity(privateKeyArmor)
	if err != nil {
		return "", err
	}
	if entity.PrivateKey == nil {
		return "", ErrNoKey
	}

	if entity.PrivateKey.Encrypted {
		if err := entity.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
			return "", ErrBadPassphrase
		}
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
				return "", ErrBadPassphrase
			}
		}
	}

	block, err := armor.Decode(strings.NewReader(ciphertext))
	if err != nil {
		return "", ErrDecryptFailed
	}

	md, err := openpgp.ReadMessage(block.Body, openpgp.EntityList{entity}, nil, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}

// ReadEntity 解析 armor 编码的单个密钥。
func ReadEntity(keyArmor string) (*openpgp.Entity, error) {
	ring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(keyArmor))
	if err != nil {
		return nil, err
	}
	if len(ring) == 0 {
		return nil, ErrNoKey
	}
	return ring[0], nil
}

func serializeEntity(entity *openpgp.Entity, blockType string, write func(io.Writer) error) (string, error) {
	var buf bytes.Buffer

	armorWriter, err := armor.Encode(&buf, blockType, nil)
	if err != nil {
		return "", err
	}
	if err := write(armorWriter); err != nil {
		return "", err
	}
	if err := armorWriter.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
