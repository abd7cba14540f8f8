package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/math-tutor/internal/models"
)

// Parser 课程资料解析器接口
// 把一种文件格式的资料提取为供分块器使用的纯文本
type Parser interface {
	// Parse 解析文件，返回文本内容
	Parse(filePath string) (string, error)

	// ParseReader 从Reader解析内容，filename仅用于确定格式
	ParseReader(r io.Reader, filename string) (string, error)
}

// ParserFactory 根据文件扩展名选择解析器
// markdown按原文处理，段落结构留给分块器
func ParserFactory(filePath string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return NewPDFParser(), nil
	case ".txt", ".md", ".markdown":
		return NewPlainTextParser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, filepath.Ext(filePath))
	}
}

// Load 加载资料文件并提取文本
// 路径不存在返回ErrDocumentNotFound，无法识别的扩展名返回ErrUnsupportedFormat
func Load(filePath string) (string, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", models.ErrDocumentNotFound, filePath)
	}

	parser, err := ParserFactory(filePath)
	if err != nil {
		return "", err
	}

	return parser.Parse(filePath)
}
