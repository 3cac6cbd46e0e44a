package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ezac101/chainmail/internal/mailcrypt"
)

// 客户端侧的密钥对生成工具。
//
// 生成的私钥永远不应该离开用户设备，公钥通过中继注册到账本。
func main() {
	name := flag.String("name", "", "密钥持有者名称")
	email := flag.String("email", "", "密钥持有者邮箱")
	outDir := flag.String("out", ".", "输出目录")
	flag.Parse()

	if *name == "" || *email == "" {
		fmt.Println("用法:")
		fmt.Println("  keygen -name='Alice' -email='alice@example.com' -out=./keys")
		os.Exit(1)
	}

	pair, err := mailcrypt.GenerateKeyPair(*name, *email)
	if err != nil {
		fmt.Printf("错误: 生成密钥失败: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		fmt.Printf("错误: 创建输出目录失败: %v\n", err)
		os.Exit(1)
	}

	pubPath := filepath.Join(*outDir, "public.asc")
	privPath := filepath.Join(*outDir, "private.asc")

	if err := os.WriteFile(pubPath, []byte(pair.PublicKeyArmor), 0o644); err != nil {
		fmt.Printf("错误: 写入公钥失败: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(privPath, []byte(pair.PrivateKeyArmor), 0o600); err != nil {
		fmt.Printf("错误: 写入私钥失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ 密钥对已生成")
	fmt.Printf("  公钥: %s （通过 POST /v1/relay/keys 注册到账本）\n", pubPath)
	fmt.Printf("  私钥: %s （妥善保管，不要上传）\n", privPath)
}
