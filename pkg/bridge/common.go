package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// formatToolResult joins the text content of result with spaces. Results without
// any text are rendered as indented JSON.
func formatToolResult(result *sdk.CallToolResult) string {
	if result == nil {
		return ""
	}

	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*sdk.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, " ")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}

// truncateString shortens s to at most maxLen bytes for logging, cutting on a rune
// boundary.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... (truncated)"
}
