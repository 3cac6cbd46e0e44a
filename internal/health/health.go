package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/content"
	"github.com/ezac101/chainmail/internal/storage"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	health  healthcheck.Handler
	store   storage.Store
	objects content.Store
	logger  *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.Store, objects content.Store, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health:  healthcheck.NewHandler(),
		store:   store,
		objects: objects,
		logger:  logger,
	}

	hc.addChecks()

	return hc
}

func (hc *HealthChecker) addChecks() {
	// 账本存储检查
	hc.health.AddLivenessCheck("storage", func() error {
		return hc.store.Health()
	})

	// 内容后端检查
	hc.health.AddReadinessCheck("content", func() error {
		return hc.objects.Health()
	})
}

// Handler 返回健康检查处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行健康检查
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["storage"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["storage"] = "OK"
	}

	if err := hc.objects.Health(); err != nil {
		results["content"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["content"] = "OK"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
