package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/util"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const mainLogName = "main.log"

var (
	setupOnce      sync.Once
	writerMu       sync.Mutex
	logWriter      *lumberjack.Logger
	cleaner        *logDirCleaner
	ginInfoWriter  *io.PipeWriter
	ginErrorWriter *io.PipeWriter
)

// LogFormatter renders entries as
// [2026-03-02 10:04:12] [a1b2c3d4] [info ] [pipeline.go:88] created listing job=7c1e... step=listing
type LogFormatter struct{}

// logFieldOrder is the display order for fields; fields not listed here are not printed.
var logFieldOrder = []string{"job", "step", "title", "shop_id", "listing_id", "status", "path", "error"}

// Format renders a single log entry.
func (m *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	buffer := entry.Buffer
	if buffer == nil {
		buffer = &bytes.Buffer{}
	}

	reqID := "--------"
	if id, ok := entry.Data["request_id"].(string); ok && id != "" {
		reqID = id
	}
	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	fmt.Fprintf(buffer, "[%s] [%s] [%-5s] ", entry.Time.Format("2006-01-02 15:04:05"), reqID, level)
	if entry.Caller != nil {
		fmt.Fprintf(buffer, "[%s:%d] ", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	buffer.WriteString(strings.TrimRight(entry.Message, "\r\n"))
	for _, k := range logFieldOrder {
		if v, ok := entry.Data[k]; ok {
			fmt.Fprintf(buffer, " %s=%v", k, v)
		}
	}
	buffer.WriteByte('\n')
	return buffer.Bytes(), nil
}

// SetupBaseLogger configures the shared logrus instance and routes Gin's writers through it.
// Calling it more than once is a no-op.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})

		ginInfoWriter = log.StandardLogger().Writer()
		gin.DefaultWriter = ginInfoWriter
		ginErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DefaultErrorWriter = ginErrorWriter
		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			log.StandardLogger().Debugf(strings.TrimRight(format, "\r\n"), values...)
		}

		log.RegisterExitHandler(closeLogOutputs)
	})
}

// FromContext returns a log entry tagged with the request ID carried by ctx, if any.
func FromContext(ctx context.Context) *log.Entry {
	if id := GetRequestID(ctx); id != "" {
		return log.WithField("request_id", id)
	}
	return log.NewEntry(log.StandardLogger())
}

// ResolveLogDirectory picks the directory for log files. WRITABLE_PATH wins; otherwise
// logs live next to the credentials file, falling back to ./logs.
func ResolveLogDirectory(cfg *config.Config) string {
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, "logs")
	}
	if cfg == nil || strings.TrimSpace(cfg.CredentialsFile) == "" {
		return "logs"
	}
	credentials, err := util.ResolvePath(cfg.CredentialsFile)
	if err != nil {
		log.Warnf("failed to resolve credentials-file %q for log directory: %v", cfg.CredentialsFile, err)
		return "logs"
	}
	return filepath.Join(filepath.Dir(credentials), "logs")
}

// ConfigureLogOutput switches the global log destination between a rotating main.log and stdout,
// and (re)starts the size-limit cleaner for the log directory.
func ConfigureLogOutput(cfg *config.Config) error {
	SetupBaseLogger()

	writerMu.Lock()
	defer writerMu.Unlock()

	logDir := ResolveLogDirectory(cfg)
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}

	protectedPath := ""
	if cfg.LoggingToFile {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("logging: failed to create log directory: %w", err)
		}
		protectedPath = filepath.Join(logDir, mainLogName)
		logWriter = &lumberjack.Logger{
			Filename: protectedPath,
			MaxSize:  10,
		}
		log.SetOutput(logWriter)
	} else {
		log.SetOutput(os.Stdout)
	}

	cleaner.stop()
	cleaner = startLogDirCleaner(logDir, cfg.LogsMaxTotalSizeMB, protectedPath)
	return nil
}

func closeLogOutputs() {
	writerMu.Lock()
	defer writerMu.Unlock()

	cleaner.stop()
	cleaner = nil

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
	if ginInfoWriter != nil {
		_ = ginInfoWriter.Close()
		ginInfoWriter = nil
	}
	if ginErrorWriter != nil {
		_ = ginErrorWriter.Close()
		ginErrorWriter = nil
	}
}
