package util

import (
	"fmt"
	"io"
	"strings"

	"github.com/common-nighthawk/go-figure"
)

// ANSI 颜色码
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

var colorNames = map[string]string{
	"red":    ColorRed,
	"green":  ColorGreen,
	"yellow": ColorYellow,
	"blue":   ColorBlue,
	"cyan":   ColorCyan,
}

// colorCode 颜色名转 ANSI 码，未知颜色不着色
func colorCode(name string) string {
	if c, ok := colorNames[strings.ToLower(name)]; ok {
		return c
	}
	return ""
}

// Banner 生成 ASCII banner，subtitle 追加在图案下方（如版本、角色）
func Banner(text, color, subtitle string) string {
	ansi := colorCode(color)
	var b strings.Builder
	for _, line := range figure.NewFigure(text, "", true).Slicify() {
		if ansi == "" {
			b.WriteString(line + "\n")
			continue
		}
		b.WriteString(ansi + line + ColorReset + "\n")
	}
	if subtitle != "" {
		b.WriteString(subtitle + "\n")
	}
	return b.String()
}

// PrintBanner 打印启动 banner
func PrintBanner(w io.Writer, text, color, subtitle string) {
	_, _ = fmt.Fprint(w, Banner(text, color, subtitle))
}
