// Package app wires all components of the conference companion server and
// runs them.
package app

import (
	"context"
	"github.com/go-redis/redis/v8"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"os"
)

// App is a complete conference companion server instance.
type App struct {
	// config is the main config used for the App.
	config Config
}

func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and runs until the given
// context.Context is done or a service fails.
func (app *App) Boot(ctx context.Context) error {
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	logger, publishLog, err := setupLogging(ctx, app.config.Log)
	if err != nil {
		return errors.Wrap(err, "setup logging", nil)
	}
	defer func() {
		_ = logger.Sync()
	}()
	err = app.boot(ctx, logger, publishLog)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context, logger *zap.Logger, publishLog <-chan logging.LogEntry) error {
	logger.Info("booting up")
	// Connect database.
	logger.Debug("connecting to database")
	db, err := connectDB(ctx, logger.Named("db"), app.config.DBConn, app.config.MaxDBConnections)
	if err != nil {
		return errors.Wrap(err, "connect database", nil)
	}
	defer db.Close()
	logger.Debug("database ready")
	// Connect Redis.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     app.config.Redis.Addr,
		Password: app.config.Redis.Password,
		DB:       app.config.Redis.DB,
	})
	defer func() {
		_ = redisClient.Close()
	}()
	err = redisClient.Ping(ctx).Err()
	if err != nil {
		return errors.FromErr("ping redis", errors.ErrCommunication, err, errors.Details{"addr": app.config.Redis.Addr})
	}
	logger.Debug("redis ready")
	services, err := createServices(app.config, logger, db, redisClient, publishLog)
	if err != nil {
		return errors.Wrap(err, "create services", nil)
	}
	logger.Info("completed setup, running services")
	err = services.run(ctx, logger)
	if err != nil {
		return errors.Wrap(err, "run services", nil)
	}
	logger.Info("shut down")
	return nil
}

// setupLogging creates the zap.Logger that logs to stdout, stderr and the
// optional files. Entries for publishing are forwarded to the returned
// channel.
func setupLogging(ctx context.Context, config LogConfig) (*zap.Logger, <-chan logging.LogEntry, error) {
	stdoutLevel, err := parseLevel(config.StdoutLevel)
	if err != nil {
		return nil, nil, errors.Wrap(err, "stdout level", nil)
	}
	publishLevel, err := parseLevel(config.PublishLevel)
	if err != nil {
		return nil, nil, errors.Wrap(err, "publish level", nil)
	}
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= stdoutLevel && level < zap.ErrorLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encConfig),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger.
	if config.HighPriorityOutput != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.HighPriorityOutput,
				MaxSize:  config.MaxSizeMB,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if config.DebugOutput != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.DebugOutput,
				MaxSize:  config.MaxSizeMB,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	// Setup publish logger.
	publishCore, publishLog := logging.NewNoPublishOmitCore(ctx, publishLevel)
	cores = append(cores, publishCore)
	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, publishLog, nil
}
