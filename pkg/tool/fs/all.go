package fs

import (
	"github.com/kernelloop/assistant/pkg/tool"
)

func Tools() []tool.Tool {
	return []tool.Tool{
		ReadTool(),
		WriteTool(),
		ListTool(),
		GlobTool(),
		GrepTool(),
	}
}