// internal/oracle/factory.go
package oracle

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/api/schemas"
	"github.com/xkilldash9x/goalpilot/internal/config"
)

// NewClient is a factory function that creates an Oracle based on the
// configured provider.
func NewClient(cfg config.OracleConfig, logger *zap.Logger) (schemas.Oracle, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported oracle provider configured: %q. Supported: [%s]",
			cfg.Provider, config.ProviderGemini)
	}
}
