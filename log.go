package netcore

import "go.uber.org/zap"

// newNopLogger is used whenever a caller does not supply one to Init, so
// every component can unconditionally hold a *zap.Logger field.
func newNopLogger() *zap.Logger {
	return zap.NewNop()
}
