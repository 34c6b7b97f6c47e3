// Package logger 初始化全局日志：logrus + lumberjack 轮转。
// 各包通过 logrus.WithField("component", ...) 取自己的 logger，
// 这里统一配置级别、格式与输出目标。
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	OutputFile string `yaml:"file"`       // 为空则只输出到控制台
	MaxSizeMB  int    `yaml:"maxSizeMb"`  // 单个日志文件上限（MB）
	MaxBackups int    `yaml:"maxBackups"` // 保留的旧文件数量
	MaxAgeDays int    `yaml:"maxAgeDays"` // 旧文件保留天数
	Compress   bool   `yaml:"compress"`
}

// Init 初始化全局日志输出。
// 同时设置全局 logrus，保证各包用 logrus.WithField() 派生的
// logger 也写入同一个文件。
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	writers := []io.Writer{os.Stdout}
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}

	logrus.SetOutput(io.MultiWriter(writers...))
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	})
	return nil
}
