package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var L *zap.Logger

// Init builds the process logger. Debug mode uses the console encoder,
// production emits JSON to stdout.
func Init(debug bool) {
	var encoder zapcore.Encoder
	level := zap.InfoLevel

	if debug {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		level = zap.DebugLevel
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	L = zap.New(core, zap.AddCaller())
}

func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}
