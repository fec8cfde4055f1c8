package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validate 日志配置校验
// Level/Format 先归一为小写再校验，与 logger 的解析规则一致；
// Path 不存在时创建，并实际写入一次确认 rotatelogs 可以在其中建文件
func (l *ZapLogConfig) Validate() error {
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	l.Format = strings.ToLower(strings.TrimSpace(l.Format))
	if err := valid.Struct(l); err != nil {
		return fmt.Errorf("log config invalid: %w", err)
	}
	abs, err := filepath.Abs(l.Path)
	if err != nil {
		return fmt.Errorf("log.path %s: %w", l.Path, err)
	}
	if err := writableDir(abs); err != nil {
		return fmt.Errorf("log.path %s not writable: %w", l.Path, err)
	}
	return nil
}

func writableDir(dir string) error {
	if stat, err := os.Stat(dir); err == nil && !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".collector-write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
