package logger

import (
	"fmt"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
)

// New builds the zap backed logger for the given environment, either
// "development" or "production".
func New(environment string) (Logger, error) {
	switch env := sdklogging.LogLevel(environment); env {
	case sdklogging.Development, sdklogging.Production:
		return sdklogging.NewZapLogger(env)
	default:
		return nil, fmt.Errorf("unknown logging environment %q", environment)
	}
}
