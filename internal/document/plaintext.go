package document

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// PlainTextParser txt和markdown资料的解析器
// 内容按原文读取，仅统一换行符，分块器依赖空行识别段落边界
type PlainTextParser struct{}

// NewPlainTextParser 创建纯文本解析器
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

// Parse 读取纯文本文件
func (p *PlainTextParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open text file: %v", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 读取全部文本并把CRLF统一为LF
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read text content: %v", err)
	}

	return strings.ReplaceAll(string(content), "\r\n", "\n"), nil
}
