package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"tempmail/capture/internal/auth/jwt"
	"tempmail/capture/internal/config"
)

// main 为内部调用方签发访问 /v1/mailboxes/validate 的服务令牌。
func main() {
	serviceName := flag.String("service", "", "调用方服务名")
	ttl := flag.Duration("ttl", jwt.DefaultTokenTTL, "令牌有效期")
	flag.Parse()

	if *serviceName == "" {
		fmt.Println("用法: issue-token -service=mailbox-api [-ttl=24h]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.InternalAuth.Secret == "" {
		fmt.Println("internal_auth.secret 未配置，服务认证未启用")
		os.Exit(1)
	}

	manager := jwt.NewManager(cfg.InternalAuth.Secret, cfg.InternalAuth.Issuer, cfg.InternalAuth.Audience)
	token, err := manager.IssueToken(*serviceName, *ttl)
	if err != nil {
		fmt.Printf("Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "service=%s expires=%s\n", *serviceName, time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println(token)
}
